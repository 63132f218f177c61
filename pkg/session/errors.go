package session

import (
	"errors"
	"fmt"
)

// Common errors for session operations.
var (
	// ErrNoActiveSession is returned when an operation needs a live
	// session and none exists.
	ErrNoActiveSession = errors.New("no active edit session")
	// ErrNoAttachments is returned when analysis is requested with
	// nothing to analyze.
	ErrNoAttachments = errors.New("session has no attachments to analyze")
)

// InvalidTransitionError is returned when an operation is not legal in the
// session's current state.
type InvalidTransitionError struct {
	State State
	Op    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Op, e.State)
}

// ConflictError signals that a content-bearing session already exists.
// It is expected control flow, not a failure: the caller must present the
// descriptor's resolution choices to the user.
type ConflictError struct {
	Descriptor *ConflictDescriptor
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("edit session conflict: %s", e.Descriptor.Reason)
}

// IsConflict reports whether err is a ConflictError and returns its
// descriptor when it is.
func IsConflict(err error) (*ConflictDescriptor, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Descriptor, true
	}
	return nil, false
}

// PayloadTooLargeError is returned when cumulative attachment size crosses
// the persistence ceiling. The payload is still kept in memory for the
// current process; only the persisted copy omits attachments.
type PayloadTooLargeError struct {
	Size    int64
	Ceiling int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("attachments total %d bytes, exceeding the %d byte persistence ceiling", e.Size, e.Ceiling)
}

// AnalysisReason classifies why an analysis attempt failed.
type AnalysisReason string

const (
	// ReasonTimeout means the call exceeded its upper bound.
	ReasonTimeout AnalysisReason = "timeout"
	// ReasonService means the remote service returned an error.
	ReasonService AnalysisReason = "service"
	// ReasonCanceled means the user canceled while analyzing.
	ReasonCanceled AnalysisReason = "canceled"
	// ReasonRestarted means the process restarted while analyzing; the
	// volatile reservation was already gone, so nothing was spent.
	ReasonRestarted AnalysisReason = "restarted"
)

// AnalysisError is the failure recorded on an analysis_failed transition.
// The reason distinguishes timeout from service error for diagnostics only;
// the resource handling (refund) is identical.
type AnalysisError struct {
	Reason AnalysisReason
	Err    error
}

func (e *AnalysisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis failed (%s)", e.Reason)
	}
	return fmt.Sprintf("analysis failed (%s): %v", e.Reason, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failure to write the durable session copy.
// It is non-fatal: the session keeps operating in memory and the error is
// surfaced as a warning, never as a blocker.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist session: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// StorageWriteError is returned by Save when the backing store write fails.
// The session remains in editing so the user can retry without re-entering
// data.
type StorageWriteError struct {
	Err error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("write record to store: %v", e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}
