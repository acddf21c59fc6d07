// Package prometheus provides the Prometheus-backed implementations of the
// collector interfaces in pkg/metrics. Importing this package (usually with
// a blank import from main) registers the constructors; nothing is collected
// until metrics.InitRegistry is called.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paperdrop/paperdrop/pkg/metrics"
	"github.com/paperdrop/paperdrop/pkg/store"
)

func init() {
	metrics.RegisterStoreMetricsConstructor(NewStoreMetrics)
}

// storeMetrics is the Prometheus implementation of store.Metrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewStoreMetrics creates a Prometheus-backed store.Metrics instance.
// Returns nil if metrics are not enabled.
func NewStoreMetrics() store.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_store_operations_total",
				Help: "Total number of object store operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "paperdrop_store_operation_duration_milliseconds",
				Help: "Duration of object store operations in milliseconds",
				Buckets: []float64{
					10,    // 10ms - HEAD and small LIST
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms - ranged GETs
					1000,  // 1s
					5000,  // 5s - large PUTs
					10000, // 10s
					30000, // 30s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_store_bytes_transferred_total",
				Help: "Total bytes transferred to and from the object store",
			},
			[]string{"operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func (m *storeMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
}
