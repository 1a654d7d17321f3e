package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"go-todo-gateway/internal/models"
)

// FileConnector は1つのJSONファイルを todos コレクションとして扱います。
// ファイル全体をメモリに読み込み、書き込みのたびにファイルへ書き戻します。
type FileConnector struct {
	store     *fileStore
	BatchSize int
}

// NewFileConnector は新しいFileConnectorを作成します。
func NewFileConnector(path string, batchSize int) *FileConnector {
	return &FileConnector{store: &fileStore{path: path}, BatchSize: batchSize}
}

// Connect はファイルを (初回のみ) 読み込み、リクエスト用のハンドルを返します。
func (c *FileConnector) Connect(ctx context.Context) (TodoRepository, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.store.ensureLoaded(); err != nil {
		return nil, err
	}
	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &TodoRepositoryFile{store: c.store, batchSize: batchSize}, nil
}

type fileStore struct {
	path string

	mu     sync.RWMutex
	loaded bool
	order  []string
	docs   map[string]models.Todo
}

func (s *fileStore) ensureLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.docs = map[string]models.Todo{}
	s.order = nil

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read file: %w", err)
	}
	var items []models.Todo
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	for _, item := range items {
		id := item.ID()
		if id == "" {
			continue
		}
		if _, dup := s.docs[id]; !dup {
			s.order = append(s.order, id)
		}
		s.docs[id] = item.WithoutID()
	}
	s.loaded = true
	return nil
}

// flush は現在の内容を一時ファイル経由で原子的に書き込みます。呼び出し側がロックを保持します。
func (s *fileStore) flush() error {
	items := make([]models.Todo, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.docs[id].WithID(id))
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// TodoRepositoryFile は fileStore に対する1リクエスト分のハンドルです。
type TodoRepositoryFile struct {
	store     *fileStore
	batchSize int
	closed    atomic.Bool
}

// Close はハンドルを無効にします。2回目以降は ErrClosed を返します。
func (r *TodoRepositoryFile) Close() error {
	if r.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}

func (r *TodoRepositoryFile) check(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// FindAll は走査開始時点のIDを挿入順に固定し、ドキュメントはバッチごとにコピーします。
// 走査中に削除されたものは飛ばします。
func (r *TodoRepositoryFile) FindAll(ctx context.Context) iter.Seq2[models.Todo, error] {
	return singlePass(func(yield func(models.Todo, error) bool) {
		if err := r.check(ctx); err != nil {
			yield(nil, err)
			return
		}
		r.store.mu.RLock()
		ids := slices.Clone(r.store.order)
		r.store.mu.RUnlock()

		for start := 0; start < len(ids); start += r.batchSize {
			if err := r.check(ctx); err != nil {
				yield(nil, err)
				return
			}
			batch, err := r.fetchBatch(ids[start:min(start+r.batchSize, len(ids))])
			if err != nil {
				yield(nil, err)
				return
			}
			for _, t := range batch {
				if !yield(t, nil) {
					return
				}
			}
		}
	})
}

func (r *TodoRepositoryFile) fetchBatch(ids []string) ([]models.Todo, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	batch := make([]models.Todo, 0, len(ids))
	for _, id := range ids {
		doc, ok := r.store.docs[id]
		if !ok {
			continue
		}
		cp, _, err := normalize(doc.WithID(id))
		if err != nil {
			return nil, err
		}
		batch = append(batch, cp)
	}
	return batch, nil
}

// FindByID は指定されたIDのTodoを取得します。
func (r *TodoRepositoryFile) FindByID(ctx context.Context, id string) (models.Todo, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	doc, ok := r.store.docs[id]
	r.store.mu.RUnlock()
	if !ok {
		return nil, ErrTodoNotFound
	}
	out, _, err := normalize(doc.WithID(id))
	return out, err
}

// Create は新しいTodoを追加します。IDはUUIDで採番します。
func (r *TodoRepositoryFile) Create(ctx context.Context, doc models.Todo) (string, error) {
	if err := r.check(ctx); err != nil {
		return "", err
	}
	stored, _, err := normalize(doc.WithoutID())
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id] = stored
	s.order = append(s.order, id)
	if err := s.flush(); err != nil {
		delete(s.docs, id)
		s.order = s.order[:len(s.order)-1]
		return "", fmt.Errorf("could not insert todo: %w", err)
	}
	return id, nil
}

// Replace は "id" 以外のフィールドを doc で置き換えます。
func (r *TodoRepositoryFile) Replace(ctx context.Context, id string, doc models.Todo) (models.ReplaceResult, error) {
	outcome, err := r.rewrite(ctx, id, func(models.Todo) models.Todo {
		return doc.WithoutID()
	})
	if err != nil {
		return models.ReplaceResult{}, err
	}
	return replaceResult(outcome), nil
}

// Update は doc を保存済みのドキュメントにマージします。
func (r *TodoRepositoryFile) Update(ctx context.Context, id string, doc models.Todo) (models.UpdateResult, error) {
	outcome, err := r.rewrite(ctx, id, func(current models.Todo) models.Todo {
		return mergeDocuments(current, doc.WithoutID())
	})
	if err != nil {
		return models.UpdateResult{}, err
	}
	return updateResult(outcome), nil
}

func (r *TodoRepositoryFile) rewrite(ctx context.Context, id string, apply func(models.Todo) models.Todo) (writeOutcome, error) {
	if err := r.check(ctx); err != nil {
		return outcomeSkipped, err
	}
	if err := validateID(id); err != nil {
		return outcomeSkipped, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[id]
	if !ok {
		return outcomeSkipped, nil
	}
	next, _, err := normalize(apply(current))
	if err != nil {
		return outcomeSkipped, err
	}
	if reflect.DeepEqual(current, next) {
		return outcomeUnchanged, nil
	}
	s.docs[id] = next
	if err := s.flush(); err != nil {
		s.docs[id] = current
		return outcomeSkipped, fmt.Errorf("could not update todo: %w", err)
	}
	return outcomeChanged, nil
}

// Delete は指定されたIDのTodoを削除します。
func (r *TodoRepositoryFile) Delete(ctx context.Context, id string) (models.DeleteResult, error) {
	if err := r.check(ctx); err != nil {
		return models.DeleteResult{}, err
	}
	if err := validateID(id); err != nil {
		return models.DeleteResult{}, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return models.DeleteResult{Skipped: 1}, nil
	}
	idx := slices.Index(s.order, id)
	delete(s.docs, id)
	s.order = slices.Delete(s.order, idx, idx+1)
	if err := s.flush(); err != nil {
		s.docs[id] = doc
		s.order = slices.Insert(s.order, idx, id)
		return models.DeleteResult{}, fmt.Errorf("could not delete todo: %w", err)
	}
	return models.DeleteResult{Deleted: 1}, nil
}
