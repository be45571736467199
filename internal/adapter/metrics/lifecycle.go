package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics holds Prometheus metrics for lifecycle events and registry maintenance.
type LifecycleMetrics struct {
	EventsTotal    *prometheus.CounterVec
	ExpiredRemoved prometheus.Counter
	SweepFailures  prometheus.Counter
}

// NewLifecycleMetrics creates and registers lifecycle metrics on the given registry.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "events_total",
			Help:      "Total number of lifecycle events handled, by route and response status.",
		}, []string{"route", "status_code"}),
		ExpiredRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "expired_removed_total",
			Help:      "Total number of expired connection records removed by the sweeper.",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "sweep_failures_total",
			Help:      "Total number of failed expiry sweeps.",
		}),
	}

	reg.MustRegister(m.EventsTotal, m.ExpiredRemoved, m.SweepFailures)
	return m
}
