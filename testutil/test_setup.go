package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"go-todo-gateway/internal/models"
	"go-todo-gateway/internal/repositories"
	"go-todo-gateway/internal/routes"
)

// SetupTestRouter はテスト用の空のデータファイルを使うGinルーターをセットアップします。
func SetupTestRouter(t *testing.T) (*gin.Engine, *repositories.FileConnector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "todoapp.json")
	connector := repositories.NewFileConnector(path, 2)
	router := routes.SetupRouter(connector, []string{"http://localhost:3000"})
	return router, connector
}

// DoJSON はJSONボディ付きのリクエストを送り、レスポンスを返します。body が nil の場合はボディなしです。
func DoJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewBuffer(b))
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// CreateTestTodo はAPI経由でTODOを作成し、採番されたIDを返します。
func CreateTestTodo(t *testing.T, router *gin.Engine, todo models.Todo) string {
	t.Helper()
	resp := DoJSON(t, router, http.MethodPost, "/todos", todo)
	require.Equal(t, http.StatusOK, resp.Code, "TODO作成に失敗しました: %s", resp.Body.String())

	var created map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotEmpty(t, created["id"])
	return created["id"]
}

// GetTestTodo はAPI経由でTODOを取得します。存在しない場合は nil です。
func GetTestTodo(t *testing.T, router *gin.Engine, id string) models.Todo {
	t.Helper()
	resp := DoJSON(t, router, http.MethodGet, "/todos/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var todo models.Todo
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &todo))
	return todo
}
