package session

// Read-only derived projections for driving presentation without exposing
// the internal session shape.

// ScanButtonState drives the scan/analyze control.
type ScanButtonState string

const (
	// ScanReady means an analysis can be started now.
	ScanReady ScanButtonState = "ready"
	// ScanBusy means an analysis is in flight.
	ScanBusy ScanButtonState = "busy"
	// ScanDisabled means the control is not applicable in this state.
	ScanDisabled ScanButtonState = "disabled"
)

// EditorMode drives which editing surface is shown.
type EditorMode string

const (
	// EditorClosed means no session exists.
	EditorClosed EditorMode = "closed"
	// EditorCapture is the capture/scan surface.
	EditorCapture EditorMode = "capture"
	// EditorReview shows the analyzed result for review.
	EditorReview EditorMode = "review"
	// EditorFull is the full field editor.
	EditorFull EditorMode = "full"
)

func (m *Machine) stateLocked() State {
	if m.s == nil {
		return StateIdle
	}
	return m.s.State
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Session returns a deep copy of the live session, or nil when idle.
func (m *Machine) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone()
}

// IsActive reports whether a non-idle session exists.
func (m *Machine) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s != nil
}

// IsAnalyzing reports whether an analysis is in flight.
func (m *Machine) IsAnalyzing() bool {
	return m.State() == StateAnalyzing
}

// IsCreditSpent reports whether a credit was durably spent on this session.
func (m *Machine) IsCreditSpent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s != nil && m.s.CreditConfirmed
}

// HasUnsavedChanges reports whether discarding would lose work.
func (m *Machine) HasUnsavedChanges() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.HasUnsavedChanges()
}

// ScanButton projects the scan control state.
func (m *Machine) ScanButton() ScanButtonState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.s == nil {
		return ScanDisabled
	}
	switch m.s.State {
	case StateAnalyzing:
		return ScanBusy
	case StateDraft, StateAttachmentPending, StateAnalysisFailed:
		if len(m.s.Attachments) > 0 {
			return ScanReady
		}
		return ScanDisabled
	default:
		return ScanDisabled
	}
}

// EditorModeView projects the editing surface to show.
func (m *Machine) EditorModeView() EditorMode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.s == nil {
		return EditorClosed
	}
	switch m.s.State {
	case StateEditing:
		return EditorFull
	case StateAnalysisComplete:
		return EditorReview
	default:
		return EditorCapture
	}
}
