// Package config は環境変数からアプリケーション設定を読み込みます。
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// DatabaseName はアプリが使用するデータベース名です。
	DatabaseName = "todoapp"
	// TableName はTodoを保存するコレクション (テーブル) 名です。
	TableName = "todos"
)

const (
	DriverMySQL = "mysql"
	DriverFile  = "file"
)

// Config はアプリケーション設定です。
type Config struct {
	Driver      string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPass      string
	DataFile    string
	BatchSize   int
	Port        string
	CORSOrigins []string
}

// Load は .env と環境変数から設定を読み込みます。未設定の値にはローカル用の既定値を使います。
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	return FromEnv()
}

// FromEnv は .env を読まずに、現在の環境変数だけから設定を組み立てます。
func FromEnv() Config {
	return Config{
		Driver:      getEnv("DB_DRIVER", DriverMySQL),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "3306"),
		DBUser:      getEnv("DB_USER", "root"),
		DBPass:      os.Getenv("DB_PASS"),
		DataFile:    getEnv("DB_FILE", DatabaseName+".json"),
		BatchSize:   getEnvInt("DB_BATCH_SIZE", 100),
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Ignoring invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
