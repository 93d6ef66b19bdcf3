package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authorization module.
type Metrics struct {
	// Decision outcomes by source and reason code
	DecisionOutcome *prometheus.CounterVec

	// Overall evaluation latency including any remote call
	EvaluateLatency prometheus.Histogram

	// Remote authority call latency
	RemoteLatency prometheus.Histogram

	// Decision cache lookups by result (hit, miss)
	CacheLookups *prometheus.CounterVec

	// Circuit breaker transitions by new state (open, closed)
	BreakerTransitions *prometheus.CounterVec
}

// New creates a new Metrics instance with all authorization metrics registered.
func New() *Metrics {
	return &Metrics{
		DecisionOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_authz_decisions_total",
			Help: "Total authorization decisions by source and reason",
		}, []string{"source", "reason"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_authz_evaluate_duration_seconds",
			Help:    "Duration of full authorization evaluation including remote fallback",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		RemoteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_authz_remote_duration_seconds",
			Help:    "Duration of policy authority calls including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_authz_cache_lookups_total",
			Help: "Decision cache lookups by result",
		}, []string{"result"}),

		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_authz_breaker_transitions_total",
			Help: "Policy authority circuit breaker transitions by new state",
		}, []string{"state"}),
	}
}

// IncrementDecision records a decision outcome.
func (m *Metrics) IncrementDecision(source, reason string) {
	if m != nil {
		m.DecisionOutcome.WithLabelValues(source, reason).Inc()
	}
}

// ObserveEvaluateLatency records the total evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// ObserveRemoteLatency records the duration of one authority consultation.
func (m *Metrics) ObserveRemoteLatency(d time.Duration) {
	if m != nil {
		m.RemoteLatency.Observe(d.Seconds())
	}
}

// IncrementCacheLookup records a decision cache hit or miss.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// IncrementBreakerTransition records a circuit breaker state change.
func (m *Metrics) IncrementBreakerTransition(state string) {
	if m != nil {
		m.BreakerTransitions.WithLabelValues(state).Inc()
	}
}
