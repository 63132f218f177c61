package credit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftgo-dev/draftgo/pkg/observability"
)

// Ledger enforces reserve -> (confirm | refund) semantics over a durable
// BalanceStore. Reservations are in-memory only: a crash while a hold is
// outstanding loses the hold, never a durable credit.
// Ledger is safe for concurrent use.
type Ledger struct {
	store BalanceStore

	mu       sync.Mutex
	reserved map[Pool]int64
	handles  map[string]*Reservation
}

// NewLedger creates a ledger over the given balance store.
func NewLedger(store BalanceStore) *Ledger {
	return &Ledger{
		store:    store,
		reserved: make(map[Pool]int64),
		handles:  make(map[string]*Reservation),
	}
}

// Reserve places a transient hold of amount against pool.
// It fails with *InsufficientCreditError when available - reserved < amount.
// No durable write happens; the hold is visible immediately through Balance
// so concurrent attempts cannot over-commit the pool.
func (l *Ledger) Reserve(ctx context.Context, pool Pool, amount int64) (*Reservation, error) {
	if !pool.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("reservation amount must be positive, got %d", amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	available, err := l.store.Available(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	if available-l.reserved[pool] < amount {
		observability.RecordCreditDenied(string(pool))
		return nil, &InsufficientCreditError{
			Pool:      pool,
			Requested: amount,
			Available: available,
			Reserved:  l.reserved[pool],
		}
	}

	res := &Reservation{
		ID:         uuid.New().String(),
		Pool:       pool,
		Amount:     amount,
		ReservedAt: time.Now().UTC(),
		status:     statusPending,
	}

	l.reserved[pool] += amount
	l.handles[res.ID] = res

	observability.RecordCreditReserve(string(pool))
	return res, nil
}

// Confirm converts a reservation into a durable spend: Available drops by
// the reserved amount and the hold is released. Confirming an
// already-confirmed handle is a no-op. Confirming a refunded handle fails.
func (l *Ledger) Confirm(ctx context.Context, res *Reservation) error {
	if res == nil {
		return ErrUnknownReservation
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.handles[res.ID]
	if !ok {
		return ErrUnknownReservation
	}

	switch held.status {
	case statusConfirmed:
		return nil
	case statusRefunded:
		return ErrReservationRefunded
	}

	// Durable decrement first: if it fails, the hold stays outstanding
	// and the caller may retry or refund.
	if err := l.store.Debit(ctx, held.Pool, held.Amount); err != nil {
		return fmt.Errorf("debit %s pool: %w", held.Pool, err)
	}

	l.reserved[held.Pool] -= held.Amount
	held.status = statusConfirmed

	observability.RecordCreditConfirm(string(held.Pool))
	return nil
}

// Refund releases a reservation's hold. Available is untouched because it
// was never decremented. Refunding an already-settled handle is a no-op.
func (l *Ledger) Refund(res *Reservation) {
	if res == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.handles[res.ID]
	if !ok || held.status != statusPending {
		return
	}

	l.reserved[held.Pool] -= held.Amount
	held.status = statusRefunded

	observability.RecordCreditRefund(string(held.Pool))
}

// Balance returns the current view of a pool.
func (l *Ledger) Balance(ctx context.Context, pool Pool) (Balance, error) {
	if !pool.Valid() {
		return Balance{}, fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}

	l.mu.Lock()
	reserved := l.reserved[pool]
	l.mu.Unlock()

	available, err := l.store.Available(ctx, pool)
	if err != nil {
		return Balance{}, fmt.Errorf("load balance: %w", err)
	}

	return Balance{Available: available, Reserved: reserved}, nil
}

// Grant durably adds credits to a pool.
func (l *Ledger) Grant(ctx context.Context, pool Pool, amount int64) error {
	if !pool.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if err := l.store.Grant(ctx, pool, amount); err != nil {
		return fmt.Errorf("grant %s pool: %w", pool, err)
	}
	return nil
}

// Outstanding returns the number of unsettled reservations. Sessions hold
// at most one at a time; anything above that indicates a caller bug.
func (l *Ledger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, h := range l.handles {
		if h.status == statusPending {
			n++
		}
	}
	return n
}
