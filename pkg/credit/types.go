// Package credit implements the scan-credit ledger.
// Credits are held in two independent pools and are only durably spent
// through a reserve/confirm/refund protocol: a reservation places a
// transient in-memory hold, confirmation converts the hold into a durable
// decrement, and a refund releases the hold without any durable change.
package credit

import (
	"time"
)

// Pool identifies a credit pool.
type Pool string

const (
	// PoolStandard is the pool for single-document scans.
	PoolStandard Pool = "standard"
	// PoolPremium is the pool for premium/batch scans.
	PoolPremium Pool = "premium"
)

// Pools lists all known pools.
var Pools = []Pool{PoolStandard, PoolPremium}

// Valid reports whether p names a known pool.
func (p Pool) Valid() bool {
	return p == PoolStandard || p == PoolPremium
}

// Balance is the point-in-time view of one pool.
type Balance struct {
	// Available is the durably persisted remaining count.
	Available int64 `json:"available"`
	// Reserved is the transient in-memory amount currently held
	// against in-flight operations. It is never persisted.
	Reserved int64 `json:"reserved"`
}

// Usable returns the amount a new reservation may draw on.
func (b Balance) Usable() int64 {
	return b.Available - b.Reserved
}

// reservationStatus tracks the settlement state of a handle.
type reservationStatus int

const (
	statusPending reservationStatus = iota
	statusConfirmed
	statusRefunded
)

// Reservation is a handle to a transient hold against a pool.
// Exactly one of Confirm/Refund settles it; both are idempotent.
type Reservation struct {
	// ID is the unique handle identifier.
	ID string `json:"id"`
	// Pool is the pool the hold was placed against.
	Pool Pool `json:"pool"`
	// Amount is the held credit count.
	Amount int64 `json:"amount"`
	// ReservedAt is when the hold was placed.
	ReservedAt time.Time `json:"reservedAt"`

	status reservationStatus
}

// Confirmed reports whether the reservation was converted into a spend.
func (r *Reservation) Confirmed() bool {
	return r != nil && r.status == statusConfirmed
}
