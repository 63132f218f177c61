package credit

import (
	"context"
	"sync"
)

// BalanceStore abstracts durable storage of pool balances.
// Only Available amounts are stored; reservations are volatile by design.
// Implementations must be safe for concurrent use.
type BalanceStore interface {
	// Available retrieves the durable remaining count for a pool.
	// Unknown pools start at zero.
	Available(ctx context.Context, pool Pool) (int64, error)

	// Debit durably decrements a pool by amount. The ledger only calls
	// Debit for a confirmed reservation, so the amount was checked
	// against the usable balance at reserve time.
	Debit(ctx context.Context, pool Pool, amount int64) error

	// Grant durably increments a pool by amount (top-ups, plan renewals).
	Grant(ctx context.Context, pool Pool, amount int64) error

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is a volatile BalanceStore for tests and degraded operation.
type MemoryStore struct {
	mu       sync.RWMutex
	balances map[Pool]int64
	closed   bool
}

// NewMemoryStore creates an empty in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[Pool]int64),
	}
}

// Available retrieves the remaining count for a pool.
func (s *MemoryStore) Available(ctx context.Context, pool Pool) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	return s.balances[pool], nil
}

// Debit decrements a pool by amount.
func (s *MemoryStore) Debit(ctx context.Context, pool Pool, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.balances[pool] -= amount
	return nil
}

// Grant increments a pool by amount.
func (s *MemoryStore) Grant(ctx context.Context, pool Pool, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.balances[pool] += amount
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
