package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/draftgo-dev/draftgo/pkg/observability"
)

// ErrAnalyzerUnavailable is returned while the circuit breaker is open
// after repeated remote failures.
var ErrAnalyzerUnavailable = errors.New("analyzer temporarily unavailable")

// GuardedConfig tunes the Guarded wrapper.
type GuardedConfig struct {
	// Timeout is the upper bound on a single remote call.
	// Exceeding it is indistinguishable from a remote error to callers.
	// Default: 45s.
	Timeout time.Duration
	// RequestsPerMinute limits how often the remote service is called.
	// Default: 30.
	RequestsPerMinute float64
	// Burst is the rate limiter burst size. Default: 5.
	Burst int
	// MaxFailures opens the circuit after this many consecutive failures.
	// Default: 5.
	MaxFailures int
	// ResetTimeout is how long the circuit stays open. Default: 60s.
	ResetTimeout time.Duration
}

func (c *GuardedConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
}

// circuitState represents the state of the circuit breaker
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// Guarded wraps an Analyzer with a call timeout, a rate limiter, and a
// circuit breaker, and records call metrics. The wrapped analyzer stays
// oblivious to all three.
type Guarded struct {
	inner   Analyzer
	limiter *rate.Limiter
	timeout time.Duration

	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	failures        int
	lastFailureTime time.Time
	state           circuitState
}

// NewGuarded wraps inner with the given guard configuration.
func NewGuarded(inner Analyzer, cfg GuardedConfig) *Guarded {
	cfg.applyDefaults()
	return &Guarded{
		inner:        inner,
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), cfg.Burst),
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		state:        circuitClosed,
	}
}

// Name returns the wrapped backend name.
func (g *Guarded) Name() string {
	return g.inner.Name()
}

// Analyze invokes the wrapped analyzer under the configured guards.
func (g *Guarded) Analyze(ctx context.Context, req Request) (*Result, error) {
	if err := g.checkCircuit(); err != nil {
		return nil, err
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("analysis rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	result, err := g.inner.Analyze(callCtx, req)
	duration := time.Since(start)

	g.recordOutcome(err)
	observability.RecordAnalysis(g.inner.Name(), statusLabel(callCtx, err), duration)

	if err != nil {
		// Map the wrapper's own deadline onto the caller-visible error so
		// "timed out" can be distinguished from "service failed".
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("analysis timed out after %s: %w", g.timeout, context.DeadlineExceeded)
		}
		return nil, err
	}
	return result, nil
}

// checkCircuit transitions open -> half-open after the reset timeout and
// rejects calls while the circuit is open.
func (g *Guarded) checkCircuit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == circuitOpen {
		if time.Since(g.lastFailureTime) > g.resetTimeout {
			g.state = circuitHalfOpen
			g.failures = 0
			return nil
		}
		return ErrAnalyzerUnavailable
	}
	return nil
}

// Healthy reports whether the breaker currently admits calls. It is a
// read-only probe: it never transitions the circuit.
func (g *Guarded) Healthy() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == circuitOpen && time.Since(g.lastFailureTime) <= g.resetTimeout {
		return ErrAnalyzerUnavailable
	}
	return nil
}

// recordOutcome updates the breaker state from a call result.
func (g *Guarded) recordOutcome(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.failures++
		g.lastFailureTime = time.Now()
		if g.failures >= g.maxFailures {
			g.state = circuitOpen
		}
		return
	}

	g.failures = 0
	g.state = circuitClosed
}

func statusLabel(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
