// Package repositories はデータベース操作を行うリポジトリを提供します。
package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"go-todo-gateway/internal/models"
)

// maxIDLength はIDとして受け付ける最大バイト長です。
const maxIDLength = 127

var (
	// ErrTodoNotFound はTODOが見つからない場合のエラーです。
	ErrTodoNotFound = errors.New("todo not found")
	// ErrInvalidID はIDが空、または長すぎる場合のエラーです。
	ErrInvalidID = errors.New("invalid todo id")
	// ErrClosed はクローズ済みの接続を使用した場合のエラーです。
	ErrClosed = errors.New("connection is closed")
	// ErrCursorConsumed は読み切ったカーソルを再度走査した場合のエラーです。
	ErrCursorConsumed = errors.New("cursor already consumed")
)

// Connector はリクエストごとの接続を確立します。
type Connector interface {
	Connect(ctx context.Context) (TodoRepository, error)
}

// TodoRepository は1リクエストの間だけ有効な todos コレクションへの接続です。
// 使用後は必ず Close を呼び出してください。
type TodoRepository interface {
	// FindAll は全件を遅延的にバッチ取得するシーケンスを返します。走査は一度だけ可能です。
	FindAll(ctx context.Context) iter.Seq2[models.Todo, error]
	// FindByID は存在しない場合 ErrTodoNotFound を返します。
	FindByID(ctx context.Context, id string) (models.Todo, error)
	// Create はドキュメントを挿入し、採番されたIDを返します。
	Create(ctx context.Context, doc models.Todo) (string, error)
	// Replace は "id" 以外のフィールドをすべて doc で置き換えます。
	Replace(ctx context.Context, id string, doc models.Todo) (models.ReplaceResult, error)
	// Update は doc を既存のドキュメントにマージします。
	Update(ctx context.Context, id string, doc models.Todo) (models.UpdateResult, error)
	Delete(ctx context.Context, id string) (models.DeleteResult, error)
	Close() error
}

func validateID(id string) error {
	if id == "" || len(id) > maxIDLength {
		return fmt.Errorf("%w: length %d", ErrInvalidID, len(id))
	}
	return nil
}

// writeOutcome は1件の書き込みがどう処理されたかを表します。
type writeOutcome int

const (
	outcomeSkipped writeOutcome = iota
	outcomeUnchanged
	outcomeChanged
)

func replaceResult(o writeOutcome) models.ReplaceResult {
	switch o {
	case outcomeChanged:
		return models.ReplaceResult{Replaced: 1}
	case outcomeUnchanged:
		return models.ReplaceResult{Unchanged: 1}
	default:
		return models.ReplaceResult{Skipped: 1}
	}
}

func updateResult(o writeOutcome) models.UpdateResult {
	switch o {
	case outcomeChanged:
		return models.UpdateResult{Updated: 1}
	case outcomeUnchanged:
		return models.UpdateResult{Unchanged: 1}
	default:
		return models.UpdateResult{Skipped: 1}
	}
}

// singlePass は2回目以降の走査で ErrCursorConsumed を返すシーケンスに包みます。
func singlePass(seq iter.Seq2[models.Todo, error]) iter.Seq2[models.Todo, error] {
	var used atomic.Bool
	return func(yield func(models.Todo, error) bool) {
		if used.Swap(true) {
			yield(nil, ErrCursorConsumed)
			return
		}
		seq(yield)
	}
}
