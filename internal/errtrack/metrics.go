// Package errtrack provides metrics for error capture and deduplication.
package errtrack

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricErrorsCapturedTotal  = "errors_captured_total"
	MetricErrorsSuppressedTotal = "errors_suppressed_total"
)

// Metrics contains Prometheus metrics for error tracking.
// All operations are thread-safe.
type Metrics struct {
	captured   *prometheus.CounterVec
	suppressed prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		captured: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricErrorsCapturedTotal,
				Help: "Total number of captured errors by category",
			},
			[]string{"category"},
		),
		suppressed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricErrorsSuppressedTotal,
				Help: "Total number of duplicate errors suppressed inside the dedupe window",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.captured, m.suppressed} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveCapture records one error occurrence and whether it was suppressed.
func (m *Metrics) ObserveCapture(category Category, duplicate bool) {
	m.captured.WithLabelValues(string(category)).Inc()
	if duplicate {
		m.suppressed.Inc()
	}
}
