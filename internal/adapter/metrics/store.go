package metrics

import "github.com/prometheus/client_golang/prometheus"

// StoreMetrics holds Prometheus metrics for registry store round trips.
type StoreMetrics struct {
	OpsTotal         *prometheus.CounterVec
	OpDuration       *prometheus.HistogramVec
	ConnectionErrors *prometheus.CounterVec
}

// NewStoreMetrics creates and registers store metrics on the given registry.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	m := &StoreMetrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations, by backend, operation and status.",
		}, []string{"backend", "operation", "status"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"backend", "operation"}),
		ConnectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connection_errors_total",
			Help:      "Total number of failed attempts to dial the store.",
		}, []string{"backend"}),
	}

	reg.MustRegister(m.OpsTotal, m.OpDuration, m.ConnectionErrors)
	return m
}
