// Package routesはroutingを行います。
package routes

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"go-todo-gateway/internal/handlers"
	"go-todo-gateway/internal/repositories"
	"go-todo-gateway/internal/services"
	"go-todo-gateway/internal/web"
)

// SetupRouter はGinルーターをセットアップし、すべてのエンドポイントを登録します。
func SetupRouter(connector repositories.Connector, allowOrigins []string) *gin.Engine {
	r := gin.Default()

	// CORS対策
	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(config))

	r.SetHTMLTemplate(web.Templates())

	todoHandler := handlers.NewTodoHandler(services.NewTodoService())

	// ルーティング
	r.GET("/", handlers.IndexHandler)
	r.GET("/api/dbcheck", func(c *gin.Context) { DBCheckHandler(c, connector) })

	todos := r.Group("/todos")
	todos.Use(ConnectionMiddleware(connector))
	{
		todos.GET("", todoHandler.GetTodosHandler)
		todos.POST("", todoHandler.CreateTodoHandler)
		todos.GET("/:id", todoHandler.GetTodoByIDHandler)
		todos.PUT("/:id", todoHandler.ReplaceTodoHandler)
		todos.PATCH("/:id", todoHandler.UpdateTodoHandler)
		todos.DELETE("/:id", todoHandler.DeleteTodoHandler)
	}

	return r
}

// DBCheckHandler はデータベース接続の健全性を確認します。
func DBCheckHandler(c *gin.Context, connector repositories.Connector) {
	repo, err := connector.Connect(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "Database connection failed", "error": err.Error()})
		return
	}
	if err := repo.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database connection is healthy"})
}
