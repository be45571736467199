package metrics

import "github.com/prometheus/client_golang/prometheus"

// CircuitBreakerMetrics tracks breaker state per protected component.
// State is 0 for closed, 1 for half-open and 2 for open.
type CircuitBreakerMetrics struct {
	State        *prometheus.GaugeVec
	StateChanges *prometheus.CounterVec
}

// NewCircuitBreakerMetrics creates and registers circuit breaker metrics on the given registry.
func NewCircuitBreakerMetrics(reg prometheus.Registerer) *CircuitBreakerMetrics {
	m := &CircuitBreakerMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state transitions, by component and new state.",
		}, []string{"component", "state"}),
	}

	reg.MustRegister(m.State, m.StateChanges)
	return m
}
