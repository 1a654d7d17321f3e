package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log"
	"reflect"

	"github.com/google/uuid"

	"go-todo-gateway/internal/config"
	"go-todo-gateway/internal/models"
)

var (
	selectBatchQuery = "SELECT id, doc FROM " + config.TableName + " WHERE id > ? ORDER BY id LIMIT ?"
	selectByIDQuery  = "SELECT id, doc FROM " + config.TableName + " WHERE id = ?"
	selectForUpdate  = "SELECT doc FROM " + config.TableName + " WHERE id = ? FOR UPDATE"
	insertQuery      = "INSERT INTO " + config.TableName + " (id, doc) VALUES (?, ?)"
	updateDocQuery   = "UPDATE " + config.TableName + " SET doc = ? WHERE id = ?"
	deleteQuery      = "DELETE FROM " + config.TableName + " WHERE id = ?"
)

// MySQLConnector はプールから1リクエスト分の *sql.Conn を切り出します。
type MySQLConnector struct {
	DB        *sql.DB
	BatchSize int
}

// NewMySQLConnector は新しいMySQLConnectorを作成します。
func NewMySQLConnector(db *sql.DB, batchSize int) *MySQLConnector {
	return &MySQLConnector{DB: db, BatchSize: batchSize}
}

// Connect は専用の接続を確保し、疎通を確認します。
func (c *MySQLConnector) Connect(ctx context.Context) (TodoRepository, error) {
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not acquire connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}
	return &TodoRepositoryMySQL{conn: conn, batchSize: c.BatchSize}, nil
}

// TodoRepositoryMySQL は todos テーブルを (id, doc JSON) として扱います。
// doc には "id" 以外のフィールドを保存します。
type TodoRepositoryMySQL struct {
	conn      *sql.Conn
	batchSize int
}

// Close は接続をプールへ返却します。
func (r *TodoRepositoryMySQL) Close() error {
	if err := r.conn.Close(); err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// FindAll はキーセットページングでバッチごとに取得します。
// 前のバッチを使い切るまで次のクエリは発行しません。
func (r *TodoRepositoryMySQL) FindAll(ctx context.Context) iter.Seq2[models.Todo, error] {
	batchSize := r.batchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return singlePass(func(yield func(models.Todo, error) bool) {
		after := ""
		for {
			batch, err := r.fetchBatch(ctx, after, batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, t := range batch {
				if !yield(t, nil) {
					return
				}
			}
			if len(batch) < batchSize {
				return
			}
			after = batch[len(batch)-1].ID()
		}
	})
}

func (r *TodoRepositoryMySQL) fetchBatch(ctx context.Context, after string, limit int) ([]models.Todo, error) {
	rows, err := r.conn.QueryContext(ctx, selectBatchQuery, after, limit)
	if err != nil {
		log.Printf("Failed to query todos: %v", err)
		return nil, fmt.Errorf("could not query todos: %w", err)
	}
	defer rows.Close()

	batch := make([]models.Todo, 0, limit)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			log.Printf("Failed to scan todo: %v", err)
			return nil, fmt.Errorf("could not scan todo: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		batch = append(batch, doc.WithID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating todos: %w", err)
	}
	return batch, nil
}

// FindByID は指定されたIDのTodoを取得します。
func (r *TodoRepositoryMySQL) FindByID(ctx context.Context, id string) (models.Todo, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var storedID string
	var raw []byte
	err := r.conn.QueryRowContext(ctx, selectByIDQuery, id).Scan(&storedID, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTodoNotFound
		}
		log.Printf("Failed to query todo by ID: %v", err)
		return nil, fmt.Errorf("could not query todo: %w", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	return doc.WithID(storedID), nil
}

// Create は新しいTodoを挿入します。IDはUUIDで採番します。
func (r *TodoRepositoryMySQL) Create(ctx context.Context, doc models.Todo) (string, error) {
	_, body, err := normalize(doc.WithoutID())
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	// JSON列はbinary文字セットを受け付けないため string で渡す
	if _, err := r.conn.ExecContext(ctx, insertQuery, id, string(body)); err != nil {
		log.Printf("Failed to insert todo: %v", err)
		return "", fmt.Errorf("could not insert todo: %w", err)
	}
	return id, nil
}

// Replace は "id" 以外のフィールドを doc で置き換えます。
func (r *TodoRepositoryMySQL) Replace(ctx context.Context, id string, doc models.Todo) (models.ReplaceResult, error) {
	outcome, err := r.rewrite(ctx, id, func(models.Todo) models.Todo {
		return doc.WithoutID()
	})
	if err != nil {
		return models.ReplaceResult{}, err
	}
	return replaceResult(outcome), nil
}

// Update は doc を保存済みのドキュメントにマージします。
func (r *TodoRepositoryMySQL) Update(ctx context.Context, id string, doc models.Todo) (models.UpdateResult, error) {
	outcome, err := r.rewrite(ctx, id, func(current models.Todo) models.Todo {
		return mergeDocuments(current, doc.WithoutID())
	})
	if err != nil {
		return models.UpdateResult{}, err
	}
	return updateResult(outcome), nil
}

// rewrite は行ロックを取って読み出し、apply の結果が異なる場合だけ書き戻します。
func (r *TodoRepositoryMySQL) rewrite(ctx context.Context, id string, apply func(models.Todo) models.Todo) (writeOutcome, error) {
	if err := validateID(id); err != nil {
		return outcomeSkipped, err
	}
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	if err := tx.QueryRowContext(ctx, selectForUpdate, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return outcomeSkipped, nil
		}
		log.Printf("Failed to lock todo: %v", err)
		return outcomeSkipped, fmt.Errorf("could not query todo: %w", err)
	}
	current, err := decodeDocument(raw)
	if err != nil {
		return outcomeSkipped, err
	}
	next, body, err := normalize(apply(current))
	if err != nil {
		return outcomeSkipped, err
	}
	if reflect.DeepEqual(current, next) {
		return outcomeUnchanged, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, updateDocQuery, string(body), id); err != nil {
		log.Printf("Failed to update todo: %v", err)
		return outcomeSkipped, fmt.Errorf("could not update todo: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return outcomeSkipped, fmt.Errorf("could not commit todo update: %w", err)
	}
	return outcomeChanged, nil
}

// Delete は指定されたIDのTodoを削除します。
func (r *TodoRepositoryMySQL) Delete(ctx context.Context, id string) (models.DeleteResult, error) {
	if err := validateID(id); err != nil {
		return models.DeleteResult{}, err
	}
	result, err := r.conn.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		log.Printf("Failed to delete todo: %v", err)
		return models.DeleteResult{}, fmt.Errorf("could not delete todo: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return models.DeleteResult{Skipped: 1}, nil
	}
	return models.DeleteResult{Deleted: int(rowsAffected)}, nil
}
