package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"os"

	"github.com/go-sql-driver/mysql"

	"go-todo-gateway/internal/config"
)

// MySQLのエラー番号
const (
	errDBCreateExists = 1007 // ER_DB_CREATE_EXISTS
	errTableExists    = 1050 // ER_TABLE_EXISTS_ERROR
)

var createTableSQL = "CREATE TABLE " + config.DatabaseName + "." + config.TableName + ` (
	id VARCHAR(36) CHARACTER SET ascii COLLATE ascii_bin NOT NULL PRIMARY KEY,
	doc JSON NOT NULL
)`

// GetDSN は設定からMySQL接続文字列 (DSN) を構築します。
// withDB が false の場合はデータベースを指定しません (セットアップ用)。
func GetDSN(cfg config.Config, withDB bool) string {
	mc := mysql.NewConfig()
	mc.User = cfg.DBUser
	mc.Passwd = cfg.DBPass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
	if withDB {
		mc.DBName = config.DatabaseName
	}
	return mc.FormatDSN()
}

// InitDB はデータベース接続を初期化します。
// アイドル接続は保持しないため、リクエストで使い終えた接続はそのまま閉じられます。
// 同時接続数に上限を設けず、リクエストを待たせずにそのままデータベースへ渡します。
// 起動時に疎通できなくても終了せず、各リクエストが 503 を返します。
func InitDB(cfg config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", GetDSN(cfg, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(0)
	db.SetMaxIdleConns(0)
	if err := db.Ping(); err != nil {
		log.Printf("Warning: database is not reachable yet: %v", err)
		return db, nil
	}
	log.Println("Successfully connected to MySQL database!")
	return db, nil
}

// SetupResult はセットアップで新たに作成したものを表します。
type SetupResult struct {
	DatabaseCreated bool
	TableCreated    bool
}

// Setup はデータベースとコレクションが無ければ作成します。
// 既に存在する場合はその旨をログに出し、エラーにはしません。
func Setup(cfg config.Config) (SetupResult, error) {
	if cfg.Driver == config.DriverFile {
		return setupFile(cfg.DataFile)
	}
	return setupMySQL(cfg)
}

func setupMySQL(cfg config.Config) (SetupResult, error) {
	var res SetupResult
	db, err := sql.Open("mysql", GetDSN(cfg, false))
	if err != nil {
		return res, fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return res, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("CREATE DATABASE " + config.DatabaseName); err != nil {
		if !isMySQLError(err, errDBCreateExists) {
			return res, fmt.Errorf("could not create database: %w", err)
		}
		log.Printf("Database %s already exists", config.DatabaseName)
	} else {
		res.DatabaseCreated = true
		log.Printf("Created database %s", config.DatabaseName)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		if !isMySQLError(err, errTableExists) {
			return res, fmt.Errorf("could not create table: %w", err)
		}
		log.Printf("Table %s.%s already exists", config.DatabaseName, config.TableName)
	} else {
		res.TableCreated = true
		log.Printf("Created table %s.%s", config.DatabaseName, config.TableName)
	}
	return res, nil
}

func setupFile(path string) (SetupResult, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			log.Printf("Data file %s already exists", path)
			return SetupResult{}, nil
		}
		return SetupResult{}, fmt.Errorf("could not create data file: %w", err)
	}
	if _, err := f.WriteString("[]\n"); err != nil {
		f.Close()
		return SetupResult{}, fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return SetupResult{}, fmt.Errorf("close file: %w", err)
	}
	log.Printf("Created data file %s", path)
	return SetupResult{DatabaseCreated: true, TableCreated: true}, nil
}

func isMySQLError(err error, number uint16) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}
