// Package metrics provides Prometheus metrics for the plan agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	MutationsTotal    *prometheus.CounterVec
	MutationDuration  *prometheus.HistogramVec
	LockAcquisitions  *prometheus.CounterVec
	IntegrityFindings *prometheus.GaugeVec
	CoveragePercent   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_mutations_total",
				Help: "Total number of mutating plan operations by operation and status.",
			},
			[]string{"operation", "status"},
		),
		MutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plan_mutation_duration_seconds",
				Help:    "Mutation duration by operation, lock wait included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		LockAcquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_lock_acquisitions_total",
				Help: "Lock acquisition attempts by result (acquired, contended, takeover).",
			},
			[]string{"result"},
		),
		IntegrityFindings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plan_integrity_findings",
				Help: "Findings in the most recent integrity report by severity.",
			},
			[]string{"severity"},
		),
		CoveragePercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plan_coverage_percent",
				Help: "Requirement coverage percentage per epic from the most recent pass.",
			},
			[]string{"epic"},
		),
		registry: reg,
	}

	reg.MustRegister(m.MutationsTotal)
	reg.MustRegister(m.MutationDuration)
	reg.MustRegister(m.LockAcquisitions)
	reg.MustRegister(m.IntegrityFindings)
	reg.MustRegister(m.CoveragePercent)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for custom gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordMutation increments the mutation counter.
func (m *Metrics) RecordMutation(operation, status string) {
	m.MutationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordLock increments the lock acquisition counter.
func (m *Metrics) RecordLock(result string) {
	m.LockAcquisitions.WithLabelValues(result).Inc()
}

// ObserveMutation records mutation duration.
func (m *Metrics) ObserveMutation(operation string, seconds float64) {
	m.MutationDuration.WithLabelValues(operation).Observe(seconds)
}

// SetFindings records the finding counts of an integrity report.
func (m *Metrics) SetFindings(errors, warnings int) {
	m.IntegrityFindings.WithLabelValues("error").Set(float64(errors))
	m.IntegrityFindings.WithLabelValues("warning").Set(float64(warnings))
}

// SetCoverage records an epic's coverage percentage.
func (m *Metrics) SetCoverage(epicID string, percent int) {
	m.CoveragePercent.WithLabelValues(epicID).Set(float64(percent))
}
