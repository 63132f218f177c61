package credit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore implements BalanceStore using a single JSON file.
// Storage layout:
//
//	<path>  # {"standard": 3, "premium": 10}
//
// Writes go through a temp file + rename so a crash mid-write never
// leaves a truncated balance file.
type FileStore struct {
	path string
	mu   sync.Mutex

	closed bool
}

// NewFileStore creates a file-based balance store at path.
// The parent directory is created if it does not exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		path = filepath.Join(home, ".draftgo", "credits.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create credit directory: %w", err)
	}

	return &FileStore{path: path}, nil
}

// Available retrieves the remaining count for a pool.
func (s *FileStore) Available(ctx context.Context, pool Pool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	balances, err := s.read()
	if err != nil {
		return 0, err
	}
	return balances[pool], nil
}

// Debit decrements a pool by amount.
func (s *FileStore) Debit(ctx context.Context, pool Pool, amount int64) error {
	return s.adjust(pool, -amount)
}

// Grant increments a pool by amount.
func (s *FileStore) Grant(ctx context.Context, pool Pool, amount int64) error {
	return s.adjust(pool, amount)
}

func (s *FileStore) adjust(pool Pool, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	balances, err := s.read()
	if err != nil {
		return err
	}
	balances[pool] += delta
	return s.write(balances)
}

// read loads the balance map; a missing file is an empty map.
func (s *FileStore) read() (map[Pool]int64, error) {
	balances := make(map[Pool]int64)

	data, err := os.ReadFile(s.path) // #nosec G304 - path fixed at construction
	if err != nil {
		if os.IsNotExist(err) {
			return balances, nil
		}
		return nil, fmt.Errorf("read balances: %w", err)
	}

	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, fmt.Errorf("parse balances: %w", err)
	}
	return balances, nil
}

func (s *FileStore) write(balances map[Pool]int64) error {
	data, err := json.MarshalIndent(balances, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal balances: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write balances: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace balances: %w", err)
	}
	return nil
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
