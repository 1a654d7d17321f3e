package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-todo-gateway/internal/handlers"
	"go-todo-gateway/internal/repositories"
)

// ConnectionMiddleware はリクエストごとにデータベース接続を確保し、コンテキストに設定するミドルウェアです。
// 接続はハンドラーの結果 (panicを含む) に関わらず、必ず1回だけ閉じられます。
func ConnectionMiddleware(connector repositories.Connector) gin.HandlerFunc {
	return func(c *gin.Context) {
		repo, err := connector.Connect(c.Request.Context())
		if err != nil {
			log.Printf("Failed to connect to database: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Database unavailable", "details": err.Error()})
			return
		}
		defer func() {
			if err := repo.Close(); err != nil {
				log.Printf("Failed to close database connection: %v", err)
			}
		}()

		c.Set(handlers.RepositoryKey, repo)
		c.Next()
	}
}
