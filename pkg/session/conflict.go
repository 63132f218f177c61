package session

import (
	"context"
	"fmt"
)

// ConflictReason says why a new draft request is blocked.
type ConflictReason string

const (
	// ReasonAnalysisInProgress blocks because an analysis is in flight.
	ReasonAnalysisInProgress ConflictReason = "analysis_in_progress"
	// ReasonCreditAlreadySpent blocks because a credit was durably spent
	// on the current session's analysis.
	ReasonCreditAlreadySpent ConflictReason = "credit_already_spent"
	// ReasonUnsavedChanges blocks because discarding would lose edits.
	ReasonUnsavedChanges ConflictReason = "unsaved_changes"
)

// SessionSummary is a minimal read-only projection of the blocking session,
// for display to the user deciding how to resolve a conflict.
type SessionSummary struct {
	SessionID   string `json:"sessionId"`
	State       State  `json:"state"`
	Origin      Origin `json:"origin"`
	RecordID    string `json:"recordId,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	Attachments int    `json:"attachments"`
	CreditSpent bool   `json:"creditSpent"`
}

func summarize(s *Session) SessionSummary {
	sum := SessionSummary{
		SessionID:   s.ID,
		State:       s.State,
		Origin:      s.Origin,
		RecordID:    s.RecordID,
		Attachments: len(s.Attachments),
		CreditSpent: s.CreditConfirmed,
	}
	if s.Record != nil {
		sum.Vendor = s.Record.Vendor
	}
	return sum
}

// ConflictDescriptor is constructed on demand when a draft request is
// blocked; it is never persisted.
type ConflictDescriptor struct {
	Reason  ConflictReason `json:"reason"`
	Summary SessionSummary `json:"summary"`
}

// Resolution is the closed set of choices a caller may apply to a conflict.
type Resolution int

const (
	// ResolutionContinueCurrent keeps the current session; the requested
	// action is abandoned.
	ResolutionContinueCurrent Resolution = iota
	// ResolutionViewOther opens the requested record in a non-mutating
	// view without touching the session.
	ResolutionViewOther
	// ResolutionDiscardAndProceed discards the current session and then
	// performs the originally requested action.
	ResolutionDiscardAndProceed
)

// Resolver evaluates draft requests against the live session and applies
// the user's resolution choice.
type Resolver struct {
	machine *Machine
}

// NewResolver creates a resolver over the given machine.
func NewResolver(m *Machine) *Resolver {
	return &Resolver{machine: m}
}

// Evaluate returns a descriptor when a new draft request would conflict
// with the live session, or nil when it may proceed immediately.
func (r *Resolver) Evaluate() *ConflictDescriptor {
	r.machine.mu.Lock()
	defer r.machine.mu.Unlock()
	return r.machine.conflictLocked()
}

// Resolve applies a resolution choice. The proceed callback carries the
// originally requested action; it runs for ResolutionDiscardAndProceed
// after a confirmed discard, and is skipped entirely for the other choices.
func (r *Resolver) Resolve(ctx context.Context, choice Resolution, proceed func(context.Context) error) error {
	switch choice {
	case ResolutionContinueCurrent, ResolutionViewOther:
		// Both leave the session untouched; viewing another record happens
		// entirely outside the machine.
		return nil
	case ResolutionDiscardAndProceed:
		outcome, err := r.machine.Discard(ctx)
		if err != nil {
			return fmt.Errorf("discard current session: %w", err)
		}
		if !outcome.Confirmed {
			return nil
		}
		if proceed == nil {
			return nil
		}
		return proceed(ctx)
	default:
		return fmt.Errorf("unknown resolution choice %d", choice)
	}
}
