package repositories

import (
	"encoding/json"
	"fmt"

	"go-todo-gateway/internal/models"
)

// normalize はJSONを往復させ、保存されるのと同じ表現に揃えます。
// 数値は float64、ネストしたオブジェクトは map[string]any になります。
func normalize(doc models.Todo) (models.Todo, []byte, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("could not encode todo: %w", err)
	}
	out, err := decodeDocument(body)
	if err != nil {
		return nil, nil, err
	}
	return out, body, nil
}

func decodeDocument(raw []byte) (models.Todo, error) {
	var doc models.Todo
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("could not decode todo: %w", err)
	}
	if doc == nil {
		doc = models.Todo{}
	}
	return doc, nil
}

// mergeDocuments は patch を base に深くマージした新しいドキュメントを返します。
// オブジェクト同士は再帰的にマージし、それ以外 (null、配列を含む) は上書きします。
func mergeDocuments(base, patch models.Todo) models.Todo {
	merged := mergeValue(map[string]any(base), map[string]any(patch))
	return models.Todo(merged.(map[string]any))
}

func mergeValue(base, patch any) any {
	patchObj, ok := patch.(map[string]any)
	if !ok {
		return patch
	}
	baseObj, ok := base.(map[string]any)
	if !ok {
		return patchObj
	}
	out := make(map[string]any, len(baseObj)+len(patchObj))
	for k, v := range baseObj {
		out[k] = v
	}
	for k, v := range patchObj {
		out[k] = mergeValue(baseObj[k], v)
	}
	return out
}
