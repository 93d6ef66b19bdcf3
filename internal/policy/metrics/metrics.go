// Package metrics provides observability for the policy lifecycle module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts policy version lifecycle operations.
type Metrics struct {
	// Seals by outcome (sealed, rejected_impact)
	Seals *prometheus.CounterVec

	// Rollbacks performed
	Rollbacks prometheus.Counter

	// Dry-run evaluations via the admin test endpoint
	TestEvaluations prometheus.Counter
}

// New registers and returns the policy lifecycle metrics.
func New() *Metrics {
	return &Metrics{
		Seals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_policy_seals_total",
			Help: "Policy seal attempts by outcome",
		}, []string{"outcome"}),

		Rollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_policy_rollbacks_total",
			Help: "Policy default version rollbacks",
		}),

		TestEvaluations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aegis_policy_test_evaluations_total",
			Help: "Dry-run policy evaluations",
		}),
	}
}

// IncrementSeal records a seal attempt outcome.
func (m *Metrics) IncrementSeal(outcome string) {
	if m != nil {
		m.Seals.WithLabelValues(outcome).Inc()
	}
}

// IncrementRollback records a completed rollback.
func (m *Metrics) IncrementRollback() {
	if m != nil {
		m.Rollbacks.Inc()
	}
}

// IncrementTestEvaluation records a dry-run evaluation.
func (m *Metrics) IncrementTestEvaluation() {
	if m != nil {
		m.TestEvaluations.Inc()
	}
}
