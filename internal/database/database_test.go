package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-todo-gateway/internal/config"
	"go-todo-gateway/internal/models"
	"go-todo-gateway/internal/repositories"
)

func TestGetDSN(t *testing.T) {
	cfg := config.Config{DBUser: "todo", DBPass: "secret", DBHost: "db", DBPort: "3306"}

	withDB, err := mysql.ParseDSN(GetDSN(cfg, true))
	require.NoError(t, err)
	assert.Equal(t, "todo", withDB.User)
	assert.Equal(t, "secret", withDB.Passwd)
	assert.Equal(t, "tcp", withDB.Net)
	assert.Equal(t, "db:3306", withDB.Addr)
	assert.Equal(t, "todoapp", withDB.DBName)

	server, err := mysql.ParseDSN(GetDSN(cfg, false))
	require.NoError(t, err)
	assert.Empty(t, server.DBName)
}

func TestInitDB_DoesNotCapOpenConnections(t *testing.T) {
	// 疎通できないアドレスでもプールは作成される
	db, err := InitDB(config.Config{DBHost: "127.0.0.1", DBPort: "1", DBUser: "root"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 0, db.Stats().MaxOpenConnections)
}

func TestCreateTableSQL_BinaryIDCollation(t *testing.T) {
	idColumn := strings.SplitN(createTableSQL, "\n", 3)[1]
	assert.Contains(t, idColumn, "id VARCHAR(36)")
	assert.Contains(t, idColumn, "COLLATE ascii_bin")
}

func TestIsMySQLError(t *testing.T) {
	exists := &mysql.MySQLError{Number: errDBCreateExists, Message: "database exists"}
	assert.True(t, isMySQLError(exists, errDBCreateExists))
	assert.True(t, isMySQLError(fmt.Errorf("wrapped: %w", exists), errDBCreateExists))
	assert.False(t, isMySQLError(exists, errTableExists))
	assert.False(t, isMySQLError(errors.New("plain"), errDBCreateExists))
}

func TestSetup_FileDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todoapp.json")
	cfg := config.Config{Driver: config.DriverFile, DataFile: path}

	res, err := Setup(cfg)
	require.NoError(t, err)
	assert.Equal(t, SetupResult{DatabaseCreated: true, TableCreated: true}, res)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	// 既に存在する場合はエラーにせず、何も作成しない
	ctx := context.Background()
	repo, err := repositories.NewFileConnector(path, 10).Connect(ctx)
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.Todo{"title": "keep me"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	res, err = Setup(cfg)
	require.NoError(t, err)
	assert.Equal(t, SetupResult{}, res)

	repo, err = repositories.NewFileConnector(path, 10).Connect(ctx)
	require.NoError(t, err)
	defer repo.Close()
	count := 0
	for _, err := range repo.FindAll(ctx) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 1, count)
}
