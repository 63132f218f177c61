// Package records is the durable multi-record store boundary: the external
// datastore drafted expense records are committed to on save. Only the save
// path writes here; the active edit session never reads it.
package records

import (
	"context"
	"errors"

	"github.com/draftgo-dev/draftgo/pkg/session"
)

// Common errors for record stores.
var (
	// ErrRecordNotFound is returned when a record doesn't exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("record store is closed")
)

// Store abstracts the durable multi-record datastore. Records are scoped
// per user. Implementations must be safe for concurrent use.
type Store interface {
	// Create stores a new record and returns its generated ID.
	Create(ctx context.Context, userID string, rec *session.Record) (string, error)

	// Update replaces an existing record.
	// Returns ErrRecordNotFound if the record doesn't exist.
	Update(ctx context.Context, userID, id string, rec *session.Record) error

	// Get retrieves a record by ID.
	// Returns ErrRecordNotFound if the record doesn't exist.
	Get(ctx context.Context, userID, id string) (*session.Record, error)

	// List returns all of a user's records.
	List(ctx context.Context, userID string) (map[string]*session.Record, error)

	// Close releases any resources held by the store.
	Close() error
}

// SaveFunc adapts a Store to the session machine's save hook: drafts with
// an existing origin update their record in place, new drafts create one.
func SaveFunc(store Store) session.SaveFunc {
	return func(ctx context.Context, s *session.Session) (string, error) {
		if s.Origin == session.OriginExisting && s.RecordID != "" {
			if err := store.Update(ctx, s.UserID, s.RecordID, s.Record); err != nil {
				return "", err
			}
			return s.RecordID, nil
		}
		return store.Create(ctx, s.UserID, s.Record)
	}
}
