package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// snapshotVersion is the persisted schema version. Snapshots carrying a
// different version are discarded on load rather than migrated: a draft is
// short-lived working state, not a system of record.
const snapshotVersion = 1

// DefaultAttachmentCeiling is the cumulative attachment size above which
// the persisted copy omits attachments entirely.
const DefaultAttachmentCeiling = 4 << 20 // 4 MiB

// snapshot is the wire format of a persisted session.
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Session *Session  `json:"session"`
}

// Adapter persists the active session to a durable user-scoped key-value
// store. It is deliberately forgiving: a missing, corrupt, or incompatible
// stored copy loads as "no session", and a write failure degrades the
// session to in-memory-only operation with a logged warning.
type Adapter struct {
	kv      KV
	ceiling int64
}

// NewAdapter creates a persistence adapter over kv. A ceiling of 0 selects
// DefaultAttachmentCeiling.
func NewAdapter(kv KV, ceiling int64) *Adapter {
	if ceiling <= 0 {
		ceiling = DefaultAttachmentCeiling
	}
	return &Adapter{
		kv:      kv,
		ceiling: ceiling,
	}
}

// Ceiling returns the cumulative attachment size limit.
func (a *Adapter) Ceiling() int64 {
	return a.ceiling
}

func draftKey(userID string) string {
	return "draft-" + userID
}

// Save serializes the session under its user's key. Attachments whose
// cumulative size exceeds the ceiling are dropped from the persisted copy
// but retained in the live object: a reload before save/analysis loses only
// the attachment previews, not the rest of the draft.
func (a *Adapter) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("cannot persist nil session")
	}

	stored := s.Clone()
	if stored.AttachmentBytes() > a.ceiling {
		stored.Attachments = nil
	}

	data, err := json.Marshal(snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Session: stored,
	})
	if err != nil {
		return &PersistenceError{Err: fmt.Errorf("marshal snapshot: %w", err)}
	}

	if err := a.kv.Set(ctx, draftKey(s.UserID), data); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}

// Load restores the persisted session for a user. It returns nil when no
// copy exists, when the stored schema version is incompatible, or when
// deserialization fails; none of these are errors.
func (a *Adapter) Load(ctx context.Context, userID string) *Session {
	data, err := a.kv.Get(ctx, draftKey(userID))
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			log.Printf("Warning: failed to load persisted draft for %s: %v", userID, err)
		}
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("Warning: discarding corrupt persisted draft for %s: %v", userID, err)
		return nil
	}
	if snap.Version != snapshotVersion || snap.Session == nil {
		log.Printf("Warning: discarding persisted draft for %s with incompatible version %d", userID, snap.Version)
		return nil
	}
	return snap.Session
}

// Clear removes the persisted copy. Called exactly when the session
// transitions to idle.
func (a *Adapter) Clear(ctx context.Context, userID string) error {
	if err := a.kv.Delete(ctx, draftKey(userID)); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}
