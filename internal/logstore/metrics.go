// Package logstore provides metrics for log storage operations.
package logstore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricLogWritesTotal      = "log_writes_total"
	MetricLogWriteErrorsTotal = "log_write_errors_total"
	MetricLogFilesDeleted     = "log_retention_files_deleted_total"
	MetricLogCleanupErrors    = "log_retention_errors_total"
)

// Metrics contains Prometheus metrics for log storage operations.
// All operations are thread-safe.
type Metrics struct {
	writesTotal   *prometheus.CounterVec
	writeErrors   *prometheus.CounterVec
	filesDeleted  prometheus.Counter
	cleanupErrors prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register them
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLogWritesTotal,
				Help: "Total number of log line writes by partition",
			},
			[]string{"partition"},
		),
		writeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLogWriteErrorsTotal,
				Help: "Total number of failed log line writes by partition",
			},
			[]string{"partition"},
		),
		filesDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricLogFilesDeleted,
				Help: "Total number of partition files removed by retention cleanup",
			},
		),
		cleanupErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricLogCleanupErrors,
				Help: "Total number of per-file errors during retention cleanup",
			},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.writesTotal,
		m.writeErrors,
		m.filesDeleted,
		m.cleanupErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveWrite records one write attempt and its outcome.
func (m *Metrics) ObserveWrite(fileType FileType, err error) {
	m.writesTotal.WithLabelValues(string(fileType)).Inc()
	if err != nil {
		m.writeErrors.WithLabelValues(string(fileType)).Inc()
	}
}

// ObserveCleanup records the outcome of one retention sweep.
func (m *Metrics) ObserveCleanup(result CleanupResult) {
	m.filesDeleted.Add(float64(result.Deleted))
	m.cleanupErrors.Add(float64(len(result.Errors)))
}
