package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftgo-dev/draftgo/pkg/analysis"
	"github.com/draftgo-dev/draftgo/pkg/credit"
	"github.com/draftgo-dev/draftgo/pkg/observability"
)

// SaveFunc commits the drafted record to the external multi-record store
// and returns the stored record's ID. It is invoked only from Save; the
// session resets to idle only after it succeeds.
type SaveFunc func(ctx context.Context, s *Session) (string, error)

// DiscardTier is the confirmation severity a discard requires.
type DiscardTier int

const (
	// TierNone requires no confirmation: the session has no content.
	TierNone DiscardTier = iota
	// TierUnsaved asks a low-severity "discard changes?": content exists
	// but no credit was spent.
	TierUnsaved
	// TierCreditSpent warns that discarding forfeits a credit already
	// durably spent on a successful analysis.
	TierCreditSpent
)

func (t DiscardTier) String() string {
	switch t {
	case TierUnsaved:
		return "unsaved"
	case TierCreditSpent:
		return "credit_spent"
	default:
		return "none"
	}
}

// Confirmer answers discard confirmation prompts. Implementations range
// from an interactive terminal prompt to an always-yes policy for embedders
// that run their own dialogs before calling Discard.
type Confirmer interface {
	ConfirmDiscard(tier DiscardTier, message string) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(tier DiscardTier, message string) bool

// ConfirmDiscard calls the wrapped function.
func (f ConfirmerFunc) ConfirmDiscard(tier DiscardTier, message string) bool {
	return f(tier, message)
}

// AlwaysConfirm confirms every discard. Embedders that present their own
// confirmation UI resolve the tier before calling Discard.
var AlwaysConfirm = ConfirmerFunc(func(DiscardTier, string) bool { return true })

// DiscardOutcome reports what a Discard call did.
type DiscardOutcome struct {
	// Confirmed is true when the session was actually reset to idle.
	Confirmed bool
	// Tier is the confirmation severity that applied.
	Tier DiscardTier
	// CreditForfeited is true when a durably spent credit was left spent.
	CreditForfeited bool
}

// MachineConfig tunes a Machine.
type MachineConfig struct {
	// UserID scopes the persisted draft copy. Required.
	UserID string
	// AnalysisTimeout bounds each remote analysis call (default 45s).
	AnalysisTimeout time.Duration
	// Hints are passed to every analysis request (e.g., expected currency).
	Hints map[string]string
	// Confirmer answers discard prompts (default AlwaysConfirm).
	Confirmer Confirmer
}

// Machine owns the single canonical active edit session and coordinates the
// credit ledger and the persistence adapter on every transition. At most one
// non-idle session exists per Machine; this is structural, not conventional.
// Machine is safe for concurrent use.
type Machine struct {
	ledger   *credit.Ledger
	analyzer analysis.Analyzer
	persist  *Adapter

	userID    string
	timeout   time.Duration
	hints     map[string]string
	confirmer Confirmer

	mu sync.Mutex
	// s is the one mutable root value; nil means idle.
	s              *Session
	cancelAnalysis context.CancelFunc
	subs           []func(Event)
}

// NewMachine creates a session state machine over the given collaborators.
func NewMachine(cfg MachineConfig, ledger *credit.Ledger, analyzer analysis.Analyzer, persist *Adapter) (*Machine, error) {
	if cfg.UserID == "" {
		return nil, errors.New("user ID is required")
	}
	if ledger == nil {
		return nil, errors.New("credit ledger is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if persist == nil {
		return nil, errors.New("persistence adapter is required")
	}

	timeout := cfg.AnalysisTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	confirmer := cfg.Confirmer
	if confirmer == nil {
		confirmer = AlwaysConfirm
	}

	return &Machine{
		ledger:    ledger,
		analyzer:  analyzer,
		persist:   persist,
		userID:    cfg.UserID,
		timeout:   timeout,
		hints:     cfg.Hints,
		confirmer: confirmer,
	}, nil
}

// Subscribe registers a callback invoked after every state transition.
// Callbacks run outside the machine's lock and may query it freely.
func (m *Machine) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// notifyLocked captures the subscriber list and returns a function the
// caller invokes after releasing the lock. Same-state events signal a
// content mutation and are not counted as transitions.
func (m *Machine) notifyLocked(ev Event) func() {
	subs := make([]func(Event), len(m.subs))
	copy(subs, m.subs)
	if ev.From != ev.To {
		observability.RecordTransition(string(ev.From), string(ev.To))
	}
	return func() {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (m *Machine) eventLocked(from, to State) Event {
	ev := Event{From: from, To: to, At: time.Now().UTC()}
	if m.s != nil {
		ev.SessionID = m.s.ID
	}
	return ev
}

// persistLocked writes the current session through the adapter. Failure is
// non-fatal: the session keeps operating in memory.
func (m *Machine) persistLocked(ctx context.Context) {
	if m.s == nil {
		return
	}
	m.s.UpdatedAt = time.Now().UTC()
	if err := m.persist.Save(ctx, m.s); err != nil {
		log.Printf("Warning: failed to persist draft session: %v", err)
		observability.RecordPersistenceFailure()
	}
}

// clearPersistedLocked removes the durable copy on a transition to idle.
func (m *Machine) clearPersistedLocked(ctx context.Context) {
	if err := m.persist.Clear(ctx, m.userID); err != nil {
		log.Printf("Warning: failed to clear persisted draft: %v", err)
		observability.RecordPersistenceFailure()
	}
}

// conflictLocked returns a descriptor when the current session blocks a new
// draft request, or nil when the request may proceed. A non-idle session
// with no content is freely replaceable.
func (m *Machine) conflictLocked() *ConflictDescriptor {
	s := m.s
	if s == nil {
		return nil
	}

	var reason ConflictReason
	switch {
	case s.State == StateAnalyzing:
		reason = ReasonAnalysisInProgress
	case s.CreditConfirmed:
		reason = ReasonCreditAlreadySpent
	case s.HasUnsavedChanges():
		reason = ReasonUnsavedChanges
	default:
		return nil
	}

	return &ConflictDescriptor{
		Reason:  reason,
		Summary: summarize(s),
	}
}

// newSessionLocked installs a fresh session value. Replacing an empty
// non-idle session is allowed; the conflict check has already run.
func (m *Machine) newSessionLocked(state State, origin Origin) *Session {
	now := time.Now().UTC()
	m.s = &Session{
		ID:        uuid.New().String(),
		UserID:    m.userID,
		State:     state,
		Origin:    origin,
		Record:    &Record{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	observability.RecordSessionStart(string(origin))
	observability.SetActiveSession(true)
	return m.s
}

// StartNew begins a brand-new draft. It fails with a ConflictError when a
// content-bearing session already exists.
func (m *Machine) StartNew(ctx context.Context) (*Session, error) {
	m.mu.Lock()

	if desc := m.conflictLocked(); desc != nil {
		m.mu.Unlock()
		observability.RecordConflict(string(desc.Reason))
		return nil, &ConflictError{Descriptor: desc}
	}

	from := m.stateLocked()
	m.newSessionLocked(StateDraft, OriginNew)
	m.persistLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(from, StateDraft))
	out := m.s.Clone()
	m.mu.Unlock()

	notify()
	return out, nil
}

// StartEdit begins editing an existing record. When the live session is
// already editing the same record it is returned unchanged; that is
// idempotence, not a conflict.
func (m *Machine) StartEdit(ctx context.Context, recordID string, rec *Record) (*Session, error) {
	if recordID == "" {
		return nil, errors.New("record ID is required")
	}

	m.mu.Lock()

	if m.s != nil && m.s.Origin == OriginExisting && m.s.RecordID == recordID {
		out := m.s.Clone()
		m.mu.Unlock()
		return out, nil
	}

	if desc := m.conflictLocked(); desc != nil {
		m.mu.Unlock()
		observability.RecordConflict(string(desc.Reason))
		return nil, &ConflictError{Descriptor: desc}
	}

	from := m.stateLocked()
	s := m.newSessionLocked(StateEditing, OriginExisting)
	s.RecordID = recordID
	s.Record = rec.Clone()
	if s.Record == nil {
		s.Record = &Record{}
	}
	s.Original = rec.Clone()
	m.persistLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(from, StateEditing))
	out := s.Clone()
	m.mu.Unlock()

	notify()
	return out, nil
}

// Attach appends a binary payload to the session, starting an implicit
// attachment_pending draft when no session exists. The payload is always
// kept in memory; when the cumulative size crosses the persistence ceiling
// the call still succeeds in memory but returns a PayloadTooLargeError to
// signal that the durable copy will omit attachments.
func (m *Machine) Attach(ctx context.Context, att Attachment) error {
	m.mu.Lock()

	from := m.stateLocked()
	var notify func()

	switch {
	case m.s == nil:
		m.newSessionLocked(StateAttachmentPending, OriginNew)
		notify = m.notifyLocked(m.eventLocked(StateIdle, StateAttachmentPending))
	case m.s.State == StateAnalyzing:
		m.mu.Unlock()
		return &InvalidTransitionError{State: from, Op: "attach"}
	}

	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if att.CapturedAt.IsZero() {
		att.CapturedAt = time.Now().UTC()
	}
	m.s.Attachments = append(m.s.Attachments, att)

	var tooLarge error
	if size := m.s.AttachmentBytes(); size > m.persist.Ceiling() {
		tooLarge = &PayloadTooLargeError{Size: size, Ceiling: m.persist.Ceiling()}
	}

	m.persistLocked(ctx)
	if notify == nil {
		// No transition happened; still wake subscribers so anything
		// watching for unsaved content sees the new attachment.
		notify = m.notifyLocked(m.eventLocked(from, m.s.State))
	}
	m.mu.Unlock()

	notify()
	return tooLarge
}

// BeginAnalysis reserves a credit, moves to analyzing, and invokes the
// remote analyzer exactly once on a background goroutine. A denied
// reservation leaves the state unchanged. The reserved count drops visibly
// at once so concurrent attempts cannot over-commit the pool.
func (m *Machine) BeginAnalysis(ctx context.Context) error {
	m.mu.Lock()

	if m.s == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	from := m.s.State
	switch from {
	case StateDraft, StateAttachmentPending, StateAnalysisFailed:
	default:
		m.mu.Unlock()
		return &InvalidTransitionError{State: from, Op: "begin analysis"}
	}
	if len(m.s.Attachments) == 0 {
		m.mu.Unlock()
		return ErrNoAttachments
	}

	// Batch scans draw on the premium pool, single captures on standard.
	pool := credit.PoolStandard
	if len(m.s.Attachments) > 1 {
		pool = credit.PoolPremium
	}

	res, err := m.ledger.Reserve(ctx, pool, 1)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.s.Reservation = res
	m.s.State = StateAnalyzing
	m.s.LastError = ""

	analysisCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
	m.cancelAnalysis = cancel

	sessionID := m.s.ID
	req := analysis.Request{
		Images: make([]analysis.Image, 0, len(m.s.Attachments)),
		Hints:  m.hints,
	}
	for _, att := range m.s.Attachments {
		req.Images = append(req.Images, analysis.Image{
			Name: att.Name,
			MIME: att.MIME,
			Data: att.Data,
		})
	}

	m.persistLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(from, StateAnalyzing))
	m.mu.Unlock()

	go func() {
		defer cancel()
		result, err := m.analyzer.Analyze(analysisCtx, req)
		if err != nil {
			m.OnAnalysisError(sessionID, err)
			return
		}
		m.OnAnalysisResult(sessionID, result)
	}()

	notify()
	return nil
}

// staleLocked reports whether an analysis callback refers to a session that
// is no longer the live analyzing one. Stale responses are dropped silently.
func (m *Machine) staleLocked(sessionID string) bool {
	return m.s == nil || m.s.ID != sessionID || m.s.State != StateAnalyzing
}

// OnAnalysisResult settles a successful analysis: the credit reservation is
// durably confirmed and the record is stamped with the parsed result. A
// result for a session that was discarded or replaced is a no-op.
func (m *Machine) OnAnalysisResult(sessionID string, result *analysis.Result) {
	m.mu.Lock()

	if m.staleLocked(sessionID) || result == nil {
		m.mu.Unlock()
		return
	}

	if err := m.ledger.Confirm(context.Background(), m.s.Reservation); err != nil {
		// The durable decrement failed, so nothing was spent; settle the
		// attempt as a failure and release the hold.
		m.mu.Unlock()
		m.OnAnalysisError(sessionID, fmt.Errorf("confirm credit spend: %w", err))
		return
	}

	m.s.Reservation = nil
	m.s.CreditConfirmed = true
	m.s.Record.Vendor = result.Vendor
	m.s.Record.Total = result.Total
	m.s.Record.Currency = result.Currency
	m.s.Record.PurchasedAt = result.PurchasedAt
	m.s.Record.Category = result.Category
	if result.Notes != "" {
		m.s.Record.Notes = result.Notes
	}
	m.s.State = StateAnalysisComplete
	m.cancelAnalysis = nil

	m.persistLocked(context.Background())
	notify := m.notifyLocked(m.eventLocked(StateAnalyzing, StateAnalysisComplete))
	m.mu.Unlock()

	notify()
}

// OnAnalysisError settles a failed, timed-out, or canceled analysis: the
// reservation is refunded and the failure is recorded. An error for a
// session that was discarded or replaced is a no-op.
func (m *Machine) OnAnalysisError(sessionID string, err error) {
	m.mu.Lock()

	if m.staleLocked(sessionID) {
		m.mu.Unlock()
		return
	}

	m.ledger.Refund(m.s.Reservation)
	m.s.Reservation = nil

	reason := ReasonService
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = ReasonCanceled
	}
	m.s.LastError = (&AnalysisError{Reason: reason, Err: err}).Error()
	m.s.State = StateAnalysisFailed
	m.cancelAnalysis = nil

	m.persistLocked(context.Background())
	notify := m.notifyLocked(m.eventLocked(StateAnalyzing, StateAnalysisFailed))
	m.mu.Unlock()

	notify()
}

// CancelAnalysis cancels an in-flight analysis. The cancellation surfaces
// through OnAnalysisError with a "canceled" reason and refunds the
// reservation; resource-wise it is identical to a timeout.
func (m *Machine) CancelAnalysis() {
	m.mu.Lock()
	cancel := m.cancelAnalysis
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// OpenEditor moves a drafted or analyzed session into full editing.
func (m *Machine) OpenEditor(ctx context.Context) error {
	m.mu.Lock()

	if m.s == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	from := m.s.State
	switch from {
	case StateDraft, StateAnalysisComplete, StateAnalysisFailed:
	case StateEditing:
		m.mu.Unlock()
		return nil
	default:
		m.mu.Unlock()
		return &InvalidTransitionError{State: from, Op: "open editor"}
	}

	m.s.State = StateEditing
	m.persistLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(from, StateEditing))
	m.mu.Unlock()

	notify()
	return nil
}

// UpdateRecord merges a partial update into the working record.
func (m *Machine) UpdateRecord(ctx context.Context, patch RecordPatch) error {
	m.mu.Lock()

	if m.s == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	if m.s.State == StateAnalyzing {
		m.mu.Unlock()
		return &InvalidTransitionError{State: StateAnalyzing, Op: "update record"}
	}

	patch.apply(m.s.Record)
	m.persistLocked(ctx)
	st := m.s.State
	notify := m.notifyLocked(m.eventLocked(st, st))
	m.mu.Unlock()

	notify()
	return nil
}

// discardTierLocked computes the confirmation severity a discard requires.
func (m *Machine) discardTierLocked() DiscardTier {
	s := m.s
	switch {
	case s == nil:
		return TierNone
	case s.CreditConfirmed:
		return TierCreditSpent
	case s.HasUnsavedChanges() || s.State == StateAnalyzing:
		return TierUnsaved
	default:
		return TierNone
	}
}

func discardMessage(tier DiscardTier) string {
	switch tier {
	case TierCreditSpent:
		return "Discarding this draft will forfeit the scan credit already used. Discard anyway?"
	case TierUnsaved:
		return "Discard unsaved changes?"
	default:
		return ""
	}
}

// Discard resets the session to idle after the tier-appropriate
// confirmation. An in-flight analysis is canceled and its reservation
// refunded; a credit already durably spent on a successful analysis stays
// spent. A declined confirmation leaves the session untouched.
func (m *Machine) Discard(ctx context.Context) (*DiscardOutcome, error) {
	m.mu.Lock()

	if m.s == nil {
		m.mu.Unlock()
		return &DiscardOutcome{Confirmed: true, Tier: TierNone}, nil
	}
	tier := m.discardTierLocked()

	for tier != TierNone {
		// Ask outside the lock; the confirmer may block on the user.
		m.mu.Unlock()
		if !m.confirmer.ConfirmDiscard(tier, discardMessage(tier)) {
			return &DiscardOutcome{Confirmed: false, Tier: tier}, nil
		}
		m.mu.Lock()
		if m.s == nil {
			m.mu.Unlock()
			return &DiscardOutcome{Confirmed: true, Tier: tier}, nil
		}
		// The session may have moved while the prompt was open: an
		// in-flight analysis can finish and confirm its credit. A
		// confirmation given at a lower severity does not carry to a
		// higher one, so re-ask with the escalated question.
		next := m.discardTierLocked()
		if next <= tier {
			break
		}
		tier = next
	}

	if m.cancelAnalysis != nil {
		m.cancelAnalysis()
		m.cancelAnalysis = nil
	}
	m.ledger.Refund(m.s.Reservation)

	from := m.s.State
	forfeited := m.s.CreditConfirmed
	m.s = nil
	observability.SetActiveSession(false)
	m.clearPersistedLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(from, StateIdle))
	m.mu.Unlock()

	notify()
	return &DiscardOutcome{Confirmed: true, Tier: tier, CreditForfeited: forfeited}, nil
}

// Save commits the drafted record to the external store through fn and
// resets to idle only after the write succeeds. On failure the session
// stays where it was so no work is lost.
func (m *Machine) Save(ctx context.Context, fn SaveFunc) error {
	if fn == nil {
		return errors.New("save function is required")
	}

	m.mu.Lock()

	if m.s == nil {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	from := m.s.State
	switch from {
	case StateEditing, StateAnalysisComplete:
	default:
		m.mu.Unlock()
		return &InvalidTransitionError{State: from, Op: "save"}
	}

	snapshot := m.s.Clone()
	m.mu.Unlock()

	if _, err := fn(ctx, snapshot); err != nil {
		return &StorageWriteError{Err: err}
	}

	m.mu.Lock()
	if m.s == nil || m.s.ID != snapshot.ID {
		// Discarded while the write was in flight; nothing left to reset.
		m.mu.Unlock()
		return nil
	}
	m.s = nil
	observability.SetActiveSession(false)
	m.clearPersistedLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(from, StateIdle))
	m.mu.Unlock()

	notify()
	return nil
}

// Resume restores the persisted session at process start. It reports
// whether a session was restored. A draft persisted mid-analysis resumes as
// analysis_failed: the credit hold was volatile, so nothing was spent and
// nothing needs refunding.
func (m *Machine) Resume(ctx context.Context) (*Session, bool, error) {
	m.mu.Lock()

	if m.s != nil {
		out := m.s.Clone()
		m.mu.Unlock()
		return out, false, nil
	}

	restored := m.persist.Load(ctx, m.userID)
	if restored == nil {
		m.mu.Unlock()
		return nil, false, nil
	}

	if restored.State == StateAnalyzing {
		restored.State = StateAnalysisFailed
		restored.LastError = (&AnalysisError{Reason: ReasonRestarted}).Error()
		restored.Reservation = nil
	}

	m.s = restored
	observability.SetActiveSession(true)
	m.persistLocked(ctx)
	notify := m.notifyLocked(m.eventLocked(StateIdle, restored.State))
	out := restored.Clone()
	m.mu.Unlock()

	notify()
	return out, true, nil
}
