package admission

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records one observation per admission decision. A nil *Metrics is
// valid and drops everything, so the gate stays usable without a registry.
type Metrics struct {
	decisions *prometheus.CounterVec
	duration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admission_decisions_total",
				Help: "Total number of admission decisions",
			},
			[]string{"decision", "reason"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "admission_evaluate_duration_seconds",
				Help:    "Duration of admission evaluations",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) ObserveDecision(d Decision, elapsed time.Duration) {
	if m == nil {
		return
	}

	decision := "deny"
	if d.Allowed {
		decision = "allow"
	}
	m.decisions.WithLabelValues(decision, d.Reason).Inc()
	m.duration.Observe(elapsed.Seconds())
}
