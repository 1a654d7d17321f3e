package main

import (
	"flag"
	"fmt"
	"log"

	"go-todo-gateway/internal/config"
	"go-todo-gateway/internal/database"
	"go-todo-gateway/internal/repositories"
	"go-todo-gateway/internal/routes"
)

// newConnector は設定されたドライバーに応じてConnectorを作成します。
func newConnector(cfg config.Config) (repositories.Connector, func(), error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewMySQLConnector(db, cfg.BatchSize), func() { db.Close() }, nil
	case config.DriverFile:
		return repositories.NewFileConnector(cfg.DataFile, cfg.BatchSize), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Driver)
	}
}

func main() {
	setup := flag.Bool("setup", false, "create the todoapp database and todos collection, then exit")
	flag.Parse()

	cfg := config.Load()

	// セットアップモード: 作成後はサーバーを起動せずに終了する
	if *setup {
		if _, err := database.Setup(cfg); err != nil {
			log.Fatalf("Fatal: setup failed: %v", err)
		}
		return
	}

	connector, closeDB, err := newConnector(cfg)
	if err != nil {
		log.Fatalf("Fatal: %v", err)
	}
	defer closeDB()

	r := routes.SetupRouter(connector, cfg.CORSOrigins)

	// サーバー起動
	log.Printf("Server listening on port %s...", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
