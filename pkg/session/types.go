// Package session implements the active edit session: a client application
// has at most one in-progress editable draft record at any time. The Machine
// owns the single canonical session value and coordinates the credit ledger
// and the persistence adapter on every transition; the Resolver decides
// whether a new draft request may proceed; the Guard blocks navigation while
// loss would occur.
package session

import (
	"time"

	"github.com/draftgo-dev/draftgo/pkg/credit"
)

// State is the lifecycle state of the active edit session.
type State string

const (
	// StateIdle means no draft exists.
	StateIdle State = "idle"
	// StateDraft is a manually-started draft with no analysis yet.
	StateDraft State = "draft"
	// StateAttachmentPending is a draft started by capturing a payload
	// before any other content exists.
	StateAttachmentPending State = "attachment_pending"
	// StateAnalyzing means the remote analysis call is in flight and a
	// credit reservation is outstanding.
	StateAnalyzing State = "analyzing"
	// StateAnalysisComplete means analysis succeeded and the credit
	// reservation was durably confirmed.
	StateAnalysisComplete State = "analysis_complete"
	// StateAnalysisFailed means analysis failed, timed out, or was
	// canceled; the reservation was refunded.
	StateAnalysisFailed State = "analysis_failed"
	// StateEditing means the full editor is open and field changes are
	// tracked against the original record.
	StateEditing State = "editing"
)

// Origin says how the session came to exist.
type Origin string

const (
	// OriginNew is a brand-new record.
	OriginNew Origin = "new"
	// OriginExisting is an edit of a record already in the backing store.
	OriginExisting Origin = "existing"
)

// Record is the working copy of the expense record being drafted.
type Record struct {
	// Vendor is the merchant or issuer name.
	Vendor string `json:"vendor"`
	// Total is the amount in minor currency units (cents).
	Total int64 `json:"total"`
	// Currency is the ISO 4217 code.
	Currency string `json:"currency"`
	// PurchasedAt is the purchase date.
	PurchasedAt time.Time `json:"purchasedAt,omitzero"`
	// Category is the expense category.
	Category string `json:"category"`
	// Notes holds free-form detail.
	Notes string `json:"notes,omitempty"`
}

// Empty reports whether every field is unset.
func (r *Record) Empty() bool {
	if r == nil {
		return true
	}
	return r.Vendor == "" && r.Total == 0 && r.Currency == "" &&
		r.PurchasedAt.IsZero() && r.Category == "" && r.Notes == ""
}

// Equal reports field-for-field equality. Two nils are equal.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Vendor == o.Vendor && r.Total == o.Total &&
		r.Currency == o.Currency && r.PurchasedAt.Equal(o.PurchasedAt) &&
		r.Category == o.Category && r.Notes == o.Notes
}

// Clone returns a copy of the record, or nil for nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// RecordPatch is a partial update to a Record. Nil fields are left untouched.
type RecordPatch struct {
	Vendor      *string    `json:"vendor,omitempty"`
	Total       *int64     `json:"total,omitempty"`
	Currency    *string    `json:"currency,omitempty"`
	PurchasedAt *time.Time `json:"purchasedAt,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

func (p RecordPatch) apply(r *Record) {
	if p.Vendor != nil {
		r.Vendor = *p.Vendor
	}
	if p.Total != nil {
		r.Total = *p.Total
	}
	if p.Currency != nil {
		r.Currency = *p.Currency
	}
	if p.PurchasedAt != nil {
		r.PurchasedAt = *p.PurchasedAt
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Notes != nil {
		r.Notes = *p.Notes
	}
}

// Attachment is a pending binary payload (a captured receipt image) not yet
// committed to the backing store.
type Attachment struct {
	// ID is the unique attachment identifier.
	ID string `json:"id"`
	// Name is an informational label (e.g., original file name).
	Name string `json:"name"`
	// MIME is the payload content type.
	MIME string `json:"mime"`
	// Data is the raw payload.
	Data []byte `json:"data"`
	// CapturedAt is when the payload was captured.
	CapturedAt time.Time `json:"capturedAt"`
}

// Session is the one mutable root value owned by the Machine. Values handed
// out by the Machine are deep copies; mutation happens only through Machine
// operations.
type Session struct {
	// ID disambiguates stale async responses: it is regenerated every time
	// the session moves out of idle into a new draft.
	ID string `json:"id"`
	// UserID scopes the persisted copy.
	UserID string `json:"userId"`
	// State is the current lifecycle state.
	State State `json:"state"`
	// Origin says whether this drafts a new or an existing record.
	Origin Origin `json:"origin"`
	// RecordID identifies the existing record when Origin is existing.
	RecordID string `json:"recordId,omitempty"`
	// Record is the working copy. Nil only in idle.
	Record *Record `json:"record"`
	// Original is the pre-edit snapshot, nil for brand-new records.
	Original *Record `json:"original,omitempty"`
	// Attachments are the pending binary payloads.
	Attachments []Attachment `json:"attachments,omitempty"`
	// LastError describes the last failure; present only in analysis_failed.
	LastError string `json:"lastError,omitempty"`
	// Reservation is the outstanding credit hold, if any. Holds are
	// volatile: they are never persisted and do not survive a restart.
	Reservation *credit.Reservation `json:"-"`
	// CreditConfirmed is true once a reservation has been durably
	// converted into a spend.
	CreditConfirmed bool `json:"creditConfirmed"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasUnsavedChanges reports whether discarding the session would lose work:
// the record differs from the original, or this is a new record with any
// field set, or attachments are pending.
func (s *Session) HasUnsavedChanges() bool {
	if s == nil || s.State == StateIdle {
		return false
	}
	if len(s.Attachments) > 0 {
		return true
	}
	if s.Origin == OriginNew {
		return !s.Record.Empty()
	}
	return !s.Record.Equal(s.Original)
}

// AttachmentBytes returns the cumulative size of all pending payloads.
func (s *Session) AttachmentBytes() int64 {
	if s == nil {
		return 0
	}
	var total int64
	for _, att := range s.Attachments {
		total += int64(len(att.Data))
	}
	return total
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Record = s.Record.Clone()
	out.Original = s.Original.Clone()
	if s.Attachments != nil {
		out.Attachments = make([]Attachment, len(s.Attachments))
		copy(out.Attachments, s.Attachments)
		for i := range out.Attachments {
			out.Attachments[i].Data = append([]byte(nil), s.Attachments[i].Data...)
		}
	}
	if s.Reservation != nil {
		res := *s.Reservation
		out.Reservation = &res
	}
	return &out
}

// Event describes one state transition, published to subscribers.
type Event struct {
	// SessionID is the session the transition belongs to. Empty when the
	// transition is a reset to idle.
	SessionID string
	// From and To are the states on either side of the transition.
	From State
	To   State
	// At is when the transition happened.
	At time.Time
}
