package services

import (
	"context"
	"errors"
	"iter"

	"go-todo-gateway/internal/models"
	"go-todo-gateway/internal/repositories"
)

// TodoService はTodoの操作をリクエストごとのリポジトリへ渡します。
// クライアントが送った "id" はここで取り除きます。
type TodoService struct{}

// NewTodoService は新しいTodoServiceを作成します。
func NewTodoService() *TodoService {
	return &TodoService{}
}

// GetTodos は全Todoを遅延的に返します。
func (s *TodoService) GetTodos(ctx context.Context, repo repositories.TodoRepository) iter.Seq2[models.Todo, error] {
	return repo.FindAll(ctx)
}

// GetTodoByID は指定IDのTodoを取得します。存在しない場合は nil を返します。
func (s *TodoService) GetTodoByID(ctx context.Context, repo repositories.TodoRepository, id string) (models.Todo, error) {
	todo, err := repo.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrTodoNotFound) {
		return nil, nil
	}
	return todo, err
}

// CreateTodo は新しいTodoを作成し、採番されたIDを返します。
func (s *TodoService) CreateTodo(ctx context.Context, repo repositories.TodoRepository, todo models.Todo) (string, error) {
	return repo.Create(ctx, todo.WithoutID())
}

// ReplaceTodo はTodoを全置換します。
func (s *TodoService) ReplaceTodo(ctx context.Context, repo repositories.TodoRepository, id string, todo models.Todo) (models.ReplaceResult, error) {
	return repo.Replace(ctx, id, todo.WithoutID())
}

// UpdateTodo はTodoに部分的な変更をマージします。
func (s *TodoService) UpdateTodo(ctx context.Context, repo repositories.TodoRepository, id string, todo models.Todo) (models.UpdateResult, error) {
	return repo.Update(ctx, id, todo.WithoutID())
}

// DeleteTodo はTodoを削除します。
func (s *TodoService) DeleteTodo(ctx context.Context, repo repositories.TodoRepository, id string) (models.DeleteResult, error) {
	return repo.Delete(ctx, id)
}
