package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps all orders as one JSON array on disk. The mutex makes each
// read-modify-write atomic within the process; the file is replaced via
// rename so readers never see a partial write.
type FileStore struct {
	mu      sync.Mutex
	path    string
	nowFunc func() time.Time
}

// NewFileStore returns a store writing to path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, nowFunc: time.Now}
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) Create(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing.ID == o.ID {
			return ErrDuplicateID
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.nowFunc().UTC()
	}
	return s.save(append(list, o))
}

func (s *FileStore) Get(ctx context.Context, id string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, nil
}

func (s *FileStore) MarkPaid(ctx context.Context, id string, p Payment) (*Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return nil, false, err
	}
	for i := range list {
		if list[i].ID != id {
			continue
		}
		first, err := list[i].applyPayment(p, s.nowFunc().UTC())
		if err != nil {
			return nil, false, err
		}
		if first {
			if err := s.save(list); err != nil {
				return nil, false, err
			}
		}
		o := list[i]
		return &o, first, nil
	}
	return nil, false, ErrNotFound
}

func (s *FileStore) List(ctx context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return nil, err
	}
	SortNewestFirst(list)
	return list, nil
}

func (s *FileStore) load() ([]Order, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Order{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read orders file: %w", err)
	}
	if len(data) == 0 {
		return []Order{}, nil
	}
	var list []Order
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode orders file: %w", err)
	}
	return list, nil
}

func (s *FileStore) save(list []Order) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode orders: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".orders-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace orders file: %w", err)
	}
	return nil
}
