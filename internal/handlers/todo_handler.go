package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-todo-gateway/internal/models"
	"go-todo-gateway/internal/repositories"
	"go-todo-gateway/internal/services"
)

// RepositoryKey はリクエストごとの接続をgin.Contextに保存するキーです。
const RepositoryKey = "todo_repository"

// TodoHandler はTodo関連のハンドラーを管理します。
type TodoHandler struct {
	todoService *services.TodoService
}

// NewTodoHandler は新しいTodoHandlerを作成します。
func NewTodoHandler(todoService *services.TodoService) *TodoHandler {
	return &TodoHandler{todoService: todoService}
}

// IndexHandler はクライアントページを返します。
func IndexHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "todo.html", nil)
}

func repositoryFrom(c *gin.Context) (repositories.TodoRepository, bool) {
	val, exists := c.Get(RepositoryKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database connection not found in context"})
		return nil, false
	}
	repo, ok := val.(repositories.TodoRepository)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid database connection type in context"})
		return nil, false
	}
	return repo, true
}

// bindTodo はリクエストボディをJSONオブジェクトとして読み込みます。
func bindTodo(c *gin.Context) (models.Todo, bool) {
	var body models.Todo
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return nil, false
	}
	if body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
		return nil, false
	}
	return body, true
}

// GetTodosHandler はTodoリストを取得します。
// ストアから届いた順に1件ずつJSON配列として書き出し、全件をメモリに載せません。
func (h *TodoHandler) GetTodosHandler(c *gin.Context) {
	repo, ok := repositoryFrom(c)
	if !ok {
		return
	}

	started := false
	// write はクライアントへの書き込みに失敗した場合 false を返し、レスポンスを打ち切ります。
	write := func(b []byte) bool {
		if _, err := c.Writer.Write(b); err != nil {
			log.Printf("Client went away while streaming todos: %v", err)
			c.Abort()
			return false
		}
		return true
	}
	begin := func() bool {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Status(http.StatusOK)
		started = true
		return write([]byte("["))
	}

	for todo, err := range h.todoService.GetTodos(c.Request.Context(), repo) {
		var b []byte
		if err == nil {
			b, err = json.Marshal(todo)
		}
		if err != nil {
			log.Printf("Failed to fetch todos: %v", err)
			if !started {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch todos", "details": err.Error()})
				return
			}
			// ヘッダー送信後はステータスを変えられないため、配列を閉じずに打ち切る
			c.Abort()
			return
		}

		if !started {
			if !begin() {
				return
			}
		} else if !write([]byte(",")) {
			return
		}
		if !write(b) {
			return
		}
	}

	if !started && !begin() {
		return
	}
	write([]byte("]"))
}

// GetTodoByIDHandler は指定IDのTodoを取得します。存在しない場合は null を返します。
func (h *TodoHandler) GetTodoByIDHandler(c *gin.Context) {
	repo, ok := repositoryFrom(c)
	if !ok {
		return
	}

	todo, err := h.todoService.GetTodoByID(c.Request.Context(), repo, c.Param("id"))
	if err != nil {
		log.Printf("Failed to fetch todo: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch todo", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, todo)
}

// CreateTodoHandler は新しいTodoを作成し、採番されたIDを返します。
func (h *TodoHandler) CreateTodoHandler(c *gin.Context) {
	repo, ok := repositoryFrom(c)
	if !ok {
		return
	}
	newTodo, ok := bindTodo(c)
	if !ok {
		return
	}

	id, err := h.todoService.CreateTodo(c.Request.Context(), repo, newTodo)
	if err != nil {
		log.Printf("Failed to save todo: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save todo to database", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// ReplaceTodoHandler はTodoを全置換します (PUT)。
func (h *TodoHandler) ReplaceTodoHandler(c *gin.Context) {
	repo, ok := repositoryFrom(c)
	if !ok {
		return
	}
	replacement, ok := bindTodo(c)
	if !ok {
		return
	}

	result, err := h.todoService.ReplaceTodo(c.Request.Context(), repo, c.Param("id"), replacement)
	if err != nil {
		log.Printf("Failed to replace todo: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to replace todo", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// UpdateTodoHandler は送られたフィールドだけをTodoにマージします (PATCH)。
func (h *TodoHandler) UpdateTodoHandler(c *gin.Context) {
	repo, ok := repositoryFrom(c)
	if !ok {
		return
	}
	changes, ok := bindTodo(c)
	if !ok {
		return
	}

	result, err := h.todoService.UpdateTodo(c.Request.Context(), repo, c.Param("id"), changes)
	if err != nil {
		log.Printf("Failed to update todo: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update todo", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteTodoHandler はTodoを削除します。
func (h *TodoHandler) DeleteTodoHandler(c *gin.Context) {
	repo, ok := repositoryFrom(c)
	if !ok {
		return
	}

	result, err := h.todoService.DeleteTodo(c.Request.Context(), repo, c.Param("id"))
	if err != nil {
		log.Printf("Failed to delete todo: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete todo", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
