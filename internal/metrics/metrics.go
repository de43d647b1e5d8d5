// Package metrics exposes Prometheus instrumentation for the request
// security pipeline and payment verification.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	// Payment verification metrics
	VerificationsTotal        *prometheus.CounterVec
	VerificationsSuccessTotal *prometheus.CounterVec
	VerificationsFailedTotal  *prometheus.CounterVec
	VerifiedLamportsTotal     *prometheus.CounterVec
	VerificationDuration      *prometheus.HistogramVec
	ReplaysDetectedTotal      prometheus.Counter

	// RPC call metrics
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	// Security pipeline metrics
	RateLimitHitsTotal    *prometheus.CounterVec
	CSRFRejectionsTotal   *prometheus.CounterVec
	InvalidWalletsTotal   prometheus.Counter
	AuditEntriesTotal     *prometheus.CounterVec
	SecuritySweepDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Payment verification metrics
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_verifications_total",
				Help: "Total number of payment verification attempts",
			},
			[]string{"kind"},
		),
		VerificationsSuccessTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_verifications_success_total",
				Help: "Total number of successful payment verifications",
			},
			[]string{"kind", "strategy"},
		),
		VerificationsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_verifications_failed_total",
				Help: "Total number of failed payment verifications",
			},
			[]string{"kind", "reason"},
		),
		VerifiedLamportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_verified_lamports_total",
				Help: "Total verified payment volume in lamports",
			},
			[]string{"kind"},
		),
		VerificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solbeacon_verification_duration_seconds",
				Help:    "Time taken to verify a payment (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		),
		ReplaysDetectedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "solbeacon_replays_detected_total",
				Help: "Total number of replayed payment proofs rejected",
			},
		),

		// RPC call metrics
		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_rpc_calls_total",
				Help: "Total number of RPC calls to the chain",
			},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solbeacon_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls to the chain (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_rpc_errors_total",
				Help: "Total number of RPC errors",
			},
			[]string{"method", "network", "error_type"},
		),

		// Security pipeline metrics
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type", "identifier"},
		),
		CSRFRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_csrf_rejections_total",
				Help: "Total number of requests rejected by CSRF validation",
			},
			[]string{"reason"},
		),
		InvalidWalletsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "solbeacon_invalid_wallets_total",
				Help: "Total number of requests rejected for malformed wallet addresses",
			},
		),
		AuditEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_audit_entries_total",
				Help: "Total number of audit log entries recorded",
			},
			[]string{"action"},
		),
		SecuritySweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "solbeacon_security_sweep_duration_seconds",
				Help:    "Duration of the periodic security store sweep",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solbeacon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solbeacon_http_request_duration_seconds",
				Help:    "HTTP request duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solbeacon_db_query_duration_seconds",
				Help:    "Database query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
		DBConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "solbeacon_db_connections_active",
				Help: "Number of active database connections",
			},
		),
	}
}

// ObserveVerification records a verification attempt and its outcome.
// strategy is the detection strategy that accepted the payment; it is
// empty on failure.
func (m *Metrics) ObserveVerification(kind string, success bool, strategy string, lamports uint64, duration time.Duration) {
	m.VerificationsTotal.WithLabelValues(kind).Inc()
	if success {
		m.VerificationsSuccessTotal.WithLabelValues(kind, strategy).Inc()
		m.VerifiedLamportsTotal.WithLabelValues(kind).Add(float64(lamports))
	}
	m.VerificationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveVerificationFailure records a failed verification with reason.
func (m *Metrics) ObserveVerificationFailure(kind, reason string) {
	m.VerificationsFailedTotal.WithLabelValues(kind, reason).Inc()
}

// ObserveReplay records a rejected replayed proof.
func (m *Metrics) ObserveReplay() {
	m.ReplaysDetectedTotal.Inc()
}

// ObserveRPCCall records an RPC call to the chain.
func (m *Metrics) ObserveRPCCall(method, network string, duration time.Duration, err error) {
	m.RPCCallsTotal.WithLabelValues(method, network).Inc()
	m.RPCCallDuration.WithLabelValues(method, network).Observe(duration.Seconds())

	if err != nil {
		errorType := "other"
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
			errorType = "timeout"
		case strings.Contains(errStr, "rate limit"):
			errorType = "rate_limit"
		case strings.Contains(errStr, "connection"):
			errorType = "connection"
		case strings.Contains(errStr, "not found"):
			errorType = "not_found"
		case strings.Contains(errStr, "circuit breaker"):
			errorType = "circuit_open"
		}
		m.RPCErrorsTotal.WithLabelValues(method, network, errorType).Inc()
	}
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType, identifier string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType, identifier).Inc()
}

// ObserveCSRFRejection records a CSRF validation failure.
func (m *Metrics) ObserveCSRFRejection(reason string) {
	m.CSRFRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveInvalidWallet records a malformed wallet rejection.
func (m *Metrics) ObserveInvalidWallet() {
	m.InvalidWalletsTotal.Inc()
}

// ObserveAuditEntry records an audit log append.
func (m *Metrics) ObserveAuditEntry(action string) {
	m.AuditEntriesTotal.WithLabelValues(action).Inc()
}

// ObserveSecuritySweep records one run of the periodic store sweep.
func (m *Metrics) ObserveSecuritySweep(duration time.Duration) {
	m.SecuritySweepDuration.Observe(duration.Seconds())
}

// ObserveHTTPRequest records a completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDBQuery records a database query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// statusClass buckets status codes to keep label cardinality down.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
