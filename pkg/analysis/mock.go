package analysis

import (
	"context"
	"sync/atomic"
)

func init() {
	RegisterFactory("mock", func(config map[string]any) (Analyzer, error) {
		return NewMockAnalyzer(&Result{
			Vendor:     "Mock Vendor",
			Total:      1299,
			Currency:   "USD",
			Category:   "office",
			Confidence: 1,
		}, nil), nil
	})
}

// MockAnalyzer is a scripted analyzer for tests and offline development.
// Set AnalyzeFunc for full control over timing and outcome.
type MockAnalyzer struct {
	// AnalyzeFunc handles each call when set.
	AnalyzeFunc func(ctx context.Context, req Request) (*Result, error)

	result *Result
	err    error
	calls  atomic.Int64
}

// NewMockAnalyzer creates a mock that returns the fixed result or error.
func NewMockAnalyzer(result *Result, err error) *MockAnalyzer {
	return &MockAnalyzer{
		result: result,
		err:    err,
	}
}

// Name returns the backend name.
func (m *MockAnalyzer) Name() string {
	return "mock"
}

// Analyze returns the scripted outcome, honoring context cancellation.
func (m *MockAnalyzer) Analyze(ctx context.Context, req Request) (*Result, error) {
	m.calls.Add(1)

	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	out := *m.result
	return &out, nil
}

// Calls returns how many times Analyze was invoked.
func (m *MockAnalyzer) Calls() int64 {
	return m.calls.Load()
}
