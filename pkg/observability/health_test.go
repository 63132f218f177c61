package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]*HealthCheck)}
}

func TestHealthChecker_AllHealthy(t *testing.T) {
	hc := newChecker()
	hc.RegisterCheck(PingCheck())
	hc.RegisterCheck(DraftStoreCheck(func(context.Context) error { return nil }))

	resp := hc.Check(context.Background())

	if resp.Status != HealthStatusHealthy {
		t.Errorf("status = %s, want %s", resp.Status, HealthStatusHealthy)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("got %d checks, want 2", len(resp.Checks))
	}
}

func TestHealthChecker_NonCriticalFailureDegrades(t *testing.T) {
	hc := newChecker()
	hc.RegisterCheck(DraftStoreCheck(func(context.Context) error {
		return errors.New("connection refused")
	}))

	resp := hc.Check(context.Background())

	if resp.Status != HealthStatusDegraded {
		t.Errorf("status = %s, want %s", resp.Status, HealthStatusDegraded)
	}
	if resp.Checks["draft_store"].Status != HealthStatusDegraded {
		t.Errorf("draft_store status = %s, want %s", resp.Checks["draft_store"].Status, HealthStatusDegraded)
	}
}

func TestHealthChecker_CriticalFailureUnhealthy(t *testing.T) {
	hc := newChecker()
	hc.RegisterCheck(PingCheck())
	hc.RegisterCheck(CreditStoreCheck(func(context.Context) error {
		return errors.New("connection refused")
	}))

	resp := hc.Check(context.Background())

	if resp.Status != HealthStatusUnhealthy {
		t.Errorf("status = %s, want %s", resp.Status, HealthStatusUnhealthy)
	}
}

func TestHealthChecker_CheckTimeout(t *testing.T) {
	hc := newChecker()
	hc.RegisterCheck(&HealthCheck{
		Name: "slow",
		CheckFunc: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Timeout:  20 * time.Millisecond,
		Critical: false,
	})

	resp := hc.Check(context.Background())

	if resp.Checks["slow"].Status != HealthStatusDegraded {
		t.Errorf("slow check status = %s, want %s", resp.Checks["slow"].Status, HealthStatusDegraded)
	}
}

func TestHealthHandler(t *testing.T) {
	checker := InitHealthChecker()
	checker.RegisterCheck(PingCheck())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if _, ok := resp.Checks["ping"]; !ok {
		t.Error("expected ping check in response")
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
}
