package session

import (
	"fmt"
	"sync"
)

// NavigationDecision is the guard's answer to an "about to leave" event.
type NavigationDecision struct {
	// Allow is true when leaving loses nothing.
	Allow bool
	// Reason is the human-readable explanation shown when blocking.
	Reason string
}

// Guard observes session transitions and intercepts attempts to leave the
// application context while loss would occur: an analysis in flight or
// unsaved changes. It only blocks and asks; it never discards state itself.
type Guard struct {
	machine *Machine

	mu    sync.RWMutex
	armed bool
}

// NewGuard creates a navigation guard subscribed to the machine's
// transitions.
func NewGuard(m *Machine) *Guard {
	g := &Guard{machine: m}
	m.Subscribe(func(Event) {
		g.rearm()
	})
	g.rearm()
	return g
}

// rearm recomputes the armed flag after a transition.
func (g *Guard) rearm() {
	armed := g.machine.IsAnalyzing() || g.machine.HasUnsavedChanges()

	g.mu.Lock()
	g.armed = armed
	g.mu.Unlock()
}

// Armed reports whether the guard is currently intercepting navigation.
func (g *Guard) Armed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.armed
}

// Check answers an "about to leave" event. The decision is computed from
// the live session so a stale armed flag can never block a clean exit.
func (g *Guard) Check() NavigationDecision {
	if g.machine.IsAnalyzing() {
		return NavigationDecision{
			Allow:  false,
			Reason: "a document analysis is still in progress",
		}
	}
	if g.machine.HasUnsavedChanges() {
		s := g.machine.Session()
		detail := "the current draft has unsaved changes"
		if s != nil && s.Record != nil && s.Record.Vendor != "" {
			detail = fmt.Sprintf("the draft for %q has unsaved changes", s.Record.Vendor)
		}
		return NavigationDecision{Allow: false, Reason: detail}
	}
	return NavigationDecision{Allow: true}
}
