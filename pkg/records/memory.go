package records

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/draftgo-dev/draftgo/pkg/session"
)

// MemoryStore is a volatile Store for tests and degraded operation.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]map[string]*session.Record
	closed bool
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]*session.Record),
	}
}

// Create stores a new record and returns its generated ID.
func (s *MemoryStore) Create(ctx context.Context, userID string, rec *session.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	id := uuid.New().String()
	if s.users[userID] == nil {
		s.users[userID] = make(map[string]*session.Record)
	}
	s.users[userID][id] = rec.Clone()
	return id, nil
}

// Update replaces an existing record.
func (s *MemoryStore) Update(ctx context.Context, userID, id string, rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.users[userID][id]; !ok {
		return ErrRecordNotFound
	}
	s.users[userID][id] = rec.Clone()
	return nil
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := s.users[userID][id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// List returns all of a user's records.
func (s *MemoryStore) List(ctx context.Context, userID string) (map[string]*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make(map[string]*session.Record, len(s.users[userID]))
	for id, rec := range s.users[userID] {
		out[id] = rec.Clone()
	}
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
