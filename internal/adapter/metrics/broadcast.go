package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics holds Prometheus metrics for fan-out broadcasts.
type BroadcastMetrics struct {
	Deliveries      *prometheus.CounterVec
	Recipients      prometheus.Histogram
	Duration        prometheus.Histogram
	CleanupFailures prometheus.Counter
}

// NewBroadcastMetrics creates and registers broadcast metrics on the given registry.
func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Total number of delivery attempts, by outcome.",
		}, []string{"outcome"}),
		Recipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "recipients",
			Help:      "Number of registered connections targeted per broadcast.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "duration_seconds",
			Help:      "Wall time of a broadcast including stale cleanup.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "cleanup_failures_total",
			Help:      "Total number of stale connections that could not be removed from the registry.",
		}),
	}

	reg.MustRegister(m.Deliveries, m.Recipients, m.Duration, m.CleanupFailures)
	return m
}
