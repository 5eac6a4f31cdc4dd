// Package metrics holds the prometheus collectors pipeline runs report to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rollup"

// Collectors groups the run collectors. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	warnings   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by variant and final status.",
		}, []string{"variant", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"variant"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Rows written to the table store by operation.",
		}, []string{"variant", "op"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_quality_warnings_total",
			Help:      "Data-quality findings raised during reconciliation.",
		}, []string{"variant", "kind"}),
	}
	reg.MustRegister(c.runs, c.duration, c.operations, c.warnings)
	return c
}

// ObserveRun records a finished run.
func (c *Collectors) ObserveRun(variant, status string, seconds float64) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(variant, status).Inc()
	c.duration.WithLabelValues(variant).Observe(seconds)
}

// AddOperations adds n written rows for op.
func (c *Collectors) AddOperations(variant, op string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.operations.WithLabelValues(variant, op).Add(float64(n))
}

// AddWarning counts one data-quality finding.
func (c *Collectors) AddWarning(variant, kind string) {
	if c == nil {
		return
	}
	c.warnings.WithLabelValues(variant, kind).Inc()
}
