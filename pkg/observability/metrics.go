// Package observability provides Prometheus metrics and health endpoints
// for the draft session subsystem.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	sessionsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_sessions_started_total",
			Help: "Total number of edit sessions started",
		},
		[]string{"origin"},
	)

	sessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	sessionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_session_conflicts_total",
			Help: "Total number of rejected session start attempts",
		},
		[]string{"reason"},
	)

	// Credit metrics
	creditReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_credit_reservations_total",
			Help: "Total number of credit reservations placed",
		},
		[]string{"pool"},
	)

	creditConfirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_credit_confirmations_total",
			Help: "Total number of reservations converted into durable spends",
		},
		[]string{"pool"},
	)

	creditRefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_credit_refunds_total",
			Help: "Total number of reservations released without a spend",
		},
		[]string{"pool"},
	)

	creditDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_credit_denials_total",
			Help: "Total number of reservations denied for insufficient credit",
		},
		[]string{"pool"},
	)

	// Analysis metrics
	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "draftgo_analysis_duration_seconds",
			Help:    "Remote document analysis duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "draftgo_analysis_total",
			Help: "Total number of remote document analysis calls",
		},
		[]string{"backend", "status"},
	)

	// Persistence metrics
	persistenceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "draftgo_persistence_failures_total",
			Help: "Total number of non-fatal draft persistence failures",
		},
	)

	activeSession = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "draftgo_active_session",
			Help: "Whether a non-idle edit session currently exists (0 or 1)",
		},
	)

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			sessionsStartedTotal,
			sessionTransitionsTotal,
			sessionConflictsTotal,
			creditReservationsTotal,
			creditConfirmationsTotal,
			creditRefundsTotal,
			creditDenialsTotal,
			analysisDuration,
			analysisTotal,
			persistenceFailuresTotal,
			activeSession,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart records a session start
func RecordSessionStart(origin string) {
	sessionsStartedTotal.WithLabelValues(origin).Inc()
}

// RecordTransition records a session state transition
func RecordTransition(from, to string) {
	sessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordConflict records a rejected start attempt
func RecordConflict(reason string) {
	sessionConflictsTotal.WithLabelValues(reason).Inc()
}

// RecordCreditReserve records a placed reservation
func RecordCreditReserve(pool string) {
	creditReservationsTotal.WithLabelValues(pool).Inc()
}

// RecordCreditConfirm records a confirmed (durably spent) reservation
func RecordCreditConfirm(pool string) {
	creditConfirmationsTotal.WithLabelValues(pool).Inc()
}

// RecordCreditRefund records a refunded reservation
func RecordCreditRefund(pool string) {
	creditRefundsTotal.WithLabelValues(pool).Inc()
}

// RecordCreditDenied records a denied reservation
func RecordCreditDenied(pool string) {
	creditDenialsTotal.WithLabelValues(pool).Inc()
}

// RecordAnalysis records a remote analysis call
func RecordAnalysis(backend, status string, duration time.Duration) {
	analysisTotal.WithLabelValues(backend, status).Inc()
	analysisDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordPersistenceFailure records a non-fatal persistence failure
func RecordPersistenceFailure() {
	persistenceFailuresTotal.Inc()
}

// SetActiveSession sets whether a non-idle session exists
func SetActiveSession(active bool) {
	if active {
		activeSession.Set(1)
	} else {
		activeSession.Set(0)
	}
}
