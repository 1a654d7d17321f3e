package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-gateway/internal/models"
	"go-todo-gateway/internal/repositories"
	"go-todo-gateway/internal/routes"
)

// fakeConnector は Connect/Close の回数を数えます。
type fakeConnector struct {
	err      error
	closeErr error // Close が返すエラー
	todos    []models.Todo
	failAt   int // FindAll がこの件数を返した後にエラーを返す (負なら失敗しない)
	opened   atomic.Int32
	closed   atomic.Int32
}

func (f *fakeConnector) Connect(ctx context.Context) (repositories.TodoRepository, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened.Add(1)
	return &fakeRepo{conn: f}, nil
}

// fakeRepo はテストで使うメソッドだけを実装します。
type fakeRepo struct {
	repositories.TodoRepository
	conn *fakeConnector
}

func (r *fakeRepo) Close() error {
	r.conn.closed.Add(1)
	return r.conn.closeErr
}

func (r *fakeRepo) FindByID(ctx context.Context, id string) (models.Todo, error) {
	return nil, repositories.ErrTodoNotFound
}

func (r *fakeRepo) FindAll(ctx context.Context) iter.Seq2[models.Todo, error] {
	return func(yield func(models.Todo, error) bool) {
		for i, t := range r.conn.todos {
			if i == r.conn.failAt {
				yield(nil, errors.New("cursor broke"))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
		if r.conn.failAt == len(r.conn.todos) {
			yield(nil, errors.New("cursor broke"))
		}
	}
}

// brokenWriter はクライアントが切断した後の書き込み先を模します。
type brokenWriter struct {
	header http.Header
	writes int
}

func (w *brokenWriter) Header() http.Header { return w.header }

func (w *brokenWriter) Write(b []byte) (int, error) {
	w.writes++
	return 0, errors.New("write: broken pipe")
}

func (w *brokenWriter) WriteHeader(int) {}

func newRouter(fc *fakeConnector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return routes.SetupRouter(fc, []string{"http://localhost:3000"})
}

func TestConnectionMiddleware_ConnectFailure(t *testing.T) {
	fc := &fakeConnector{err: errors.New("dial tcp: connection refused")}
	r := newRouter(fc)

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Database unavailable", body["error"])
	assert.Equal(t, int32(0), fc.closed.Load())
}

func TestConnectionMiddleware_OneConnectionPerRequest(t *testing.T) {
	fc := &fakeConnector{failAt: -1}
	r := newRouter(fc)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/todos/some-id", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "null", w.Body.String())
	}
	assert.Equal(t, int32(3), fc.opened.Load())
	assert.Equal(t, int32(3), fc.closed.Load())
}

func TestConnectionMiddleware_ReleasesOnPanic(t *testing.T) {
	fc := &fakeConnector{failAt: -1}
	r := newRouter(fc)
	r.GET("/boom", routes.ConnectionMiddleware(fc), func(c *gin.Context) {
		panic("handler exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int32(1), fc.opened.Load())
	assert.Equal(t, int32(1), fc.closed.Load())
}

func TestGetTodos_Streaming(t *testing.T) {
	todos := []models.Todo{
		{"id": "a", "title": "first"},
		{"id": "b", "title": "second"},
	}

	t.Run("empty collection", func(t *testing.T) {
		r := newRouter(&fakeConnector{failAt: -1})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todos", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	})

	t.Run("all items in store order", func(t *testing.T) {
		r := newRouter(&fakeConnector{todos: todos, failAt: -1})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todos", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[{"id":"a","title":"first"},{"id":"b","title":"second"}]`, w.Body.String())
	})

	t.Run("error before first item is a server error", func(t *testing.T) {
		fc := &fakeConnector{todos: todos, failAt: 0}
		r := newRouter(fc)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todos", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Failed to fetch todos", body["error"])
		assert.Equal(t, int32(1), fc.closed.Load())
	})

	t.Run("error mid-stream truncates the array", func(t *testing.T) {
		fc := &fakeConnector{todos: todos, failAt: 1}
		r := newRouter(fc)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todos", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `[{"id":"a","title":"first"}`, w.Body.String())
		assert.False(t, json.Valid(w.Body.Bytes()))
		assert.Equal(t, int32(1), fc.closed.Load())
	})

	t.Run("stops writing once the client is gone", func(t *testing.T) {
		fc := &fakeConnector{todos: todos, failAt: -1}
		r := newRouter(fc)
		w := &brokenWriter{header: http.Header{}}
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todos", nil))

		assert.Equal(t, 1, w.writes)
		assert.Equal(t, int32(1), fc.closed.Load())
	})
}

func TestIndexPage(t *testing.T) {
	fc := &fakeConnector{err: errors.New("not needed")}
	r := newRouter(fc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<title>Todos</title>")
}

func TestDBCheck(t *testing.T) {
	healthy := &fakeConnector{failAt: -1}
	w := httptest.NewRecorder()
	newRouter(healthy).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dbcheck", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), healthy.closed.Load())

	// 解放に失敗してもログに残すだけで、疎通は確認できている
	leaky := &fakeConnector{failAt: -1, closeErr: errors.New("connection already returned")}
	w = httptest.NewRecorder()
	newRouter(leaky).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dbcheck", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), leaky.closed.Load())

	down := &fakeConnector{err: errors.New("connection refused")}
	w = httptest.NewRecorder()
	newRouter(down).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/dbcheck", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(&fakeConnector{failAt: -1})

	req := httptest.NewRequest(http.MethodOptions, "/todos/abc", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
