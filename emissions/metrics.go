// Package-level prometheus metrics for the emissions core.
package emissions

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for submissions and recalculations.
type Metrics struct {
	// Submission outcomes by source and resulting status
	Submissions *prometheus.CounterVec

	// Recalculation outcomes ("ok", "consistency_error", "error")
	Recalculations *prometheus.CounterVec

	// Full recalculation latency
	RecalcLatency prometheus.Histogram
}

// NewMetrics registers and returns the emissions metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonledger_submissions_total",
			Help: "Source entry submissions by source and resulting status",
		}, []string{"source", "status"}),

		Recalculations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "carbonledger_recalculations_total",
			Help: "Ledger recalculations by outcome",
		}, []string{"outcome"}),

		RecalcLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbonledger_recalculation_duration_seconds",
			Help:    "Duration of full ledger recalculations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveSubmission records a submission outcome.
func (m *Metrics) ObserveSubmission(source SourceType, status SourceStatus) {
	if m != nil {
		m.Submissions.WithLabelValues(string(source), string(status)).Inc()
	}
}

// ObserveRecalculation records a recalculation outcome and duration.
func (m *Metrics) ObserveRecalculation(outcome string, d time.Duration) {
	if m != nil {
		m.Recalculations.WithLabelValues(outcome).Inc()
		m.RecalcLatency.Observe(d.Seconds())
	}
}
