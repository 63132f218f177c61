package credit

import (
	"errors"
	"fmt"
)

// Common errors for ledger operations.
var (
	// ErrUnknownPool is returned when a pool name is not recognized.
	ErrUnknownPool = errors.New("unknown credit pool")
	// ErrUnknownReservation is returned when a handle is not held by this ledger.
	ErrUnknownReservation = errors.New("unknown reservation handle")
	// ErrReservationRefunded is returned when confirming a handle that was
	// already refunded. A released hold can never become a spend.
	ErrReservationRefunded = errors.New("reservation was already refunded")
	// ErrStoreClosed is returned when operating on a closed balance store.
	ErrStoreClosed = errors.New("balance store is closed")
)

// InsufficientCreditError is returned when a reservation is denied because
// the pool's usable balance (available minus reserved) is below the
// requested amount. The denial causes no state change.
type InsufficientCreditError struct {
	Pool      Pool
	Requested int64
	Available int64
	Reserved  int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit in %s pool: requested %d, usable %d (available %d, reserved %d)",
		e.Pool, e.Requested, e.Available-e.Reserved, e.Available, e.Reserved)
}

// IsInsufficient reports whether err is an InsufficientCreditError.
func IsInsufficient(err error) bool {
	var ice *InsufficientCreditError
	return errors.As(err, &ice)
}
