package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcilerMetrics counts payment reconciliation outcomes across both the
// verify-redirect and webhook channels.
type ReconcilerMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewReconcilerMetrics registers the reconciliation counters.
func NewReconcilerMetrics(reg prometheus.Registerer) *ReconcilerMetrics {
	if reg == nil {
		return &ReconcilerMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliation_total",
		Help: "Payment reconciliation attempts by channel and outcome.",
	}, []string{"channel", "outcome"})
	reg.MustRegister(outcomes)
	return &ReconcilerMetrics{outcomes: outcomes}
}

// Record counts one reconciliation outcome.
func (r *ReconcilerMetrics) Record(channel, outcome string) {
	if r == nil || r.outcomes == nil {
		return
	}
	r.outcomes.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}
