// Package modelsはTodoと書き込み結果を定義します。
package models

// IDField はサーバーが採番する主キーのフィールド名です。
const IDField = "id"

// Todo はスキーマを持たないJSONドキュメントです。
// "id" 以外のフィールドは解釈せずにそのまま保存します。
type Todo map[string]any

// ID はドキュメントのIDを返します。未設定の場合は空文字列です。
func (t Todo) ID() string {
	id, _ := t[IDField].(string)
	return id
}

// WithoutID は "id" を取り除いたコピーを返します。
func (t Todo) WithoutID() Todo {
	out := make(Todo, len(t))
	for k, v := range t {
		if k == IDField {
			continue
		}
		out[k] = v
	}
	return out
}

// WithID はIDを付与したコピーを返します。
func (t Todo) WithID(id string) Todo {
	out := make(Todo, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[IDField] = id
	return out
}

// ReplaceResult はPUT (全置換) の結果です。
type ReplaceResult struct {
	Replaced  int `json:"replaced"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// UpdateResult はPATCH (マージ) の結果です。
type UpdateResult struct {
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// DeleteResult はDELETEの結果です。
type DeleteResult struct {
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}
