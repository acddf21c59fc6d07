package metrics

import (
	"github.com/paperdrop/paperdrop/pkg/store"
)

// NewStoreMetrics creates a Prometheus-backed store.Metrics.
//
// Returns nil when metrics are disabled (InitRegistry not called); store
// implementations treat a nil collector as "don't collect".
func NewStoreMetrics() store.Metrics {
	if !IsEnabled() || newPrometheusStoreMetrics == nil {
		return nil
	}
	return newPrometheusStoreMetrics()
}

// newPrometheusStoreMetrics is registered by pkg/metrics/prometheus at init.
// The indirection keeps this package free of a dependency on the concrete
// implementation.
var newPrometheusStoreMetrics func() store.Metrics

// RegisterStoreMetricsConstructor is called by pkg/metrics/prometheus during
// package initialization.
func RegisterStoreMetricsConstructor(constructor func() store.Metrics) {
	newPrometheusStoreMetrics = constructor
}
