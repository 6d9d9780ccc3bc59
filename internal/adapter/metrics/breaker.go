package metrics

import "github.com/prometheus/client_golang/prometheus"

// Circuit states as exported on the state gauge.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// BreakerMetrics holds Prometheus metrics for circuit breakers guarding the
// registry store and the delivery endpoints.
type BreakerMetrics struct {
	State        *prometheus.GaugeVec
	StateChanges *prometheus.CounterVec
}

// NewBreakerMetrics creates and registers circuit breaker metrics on the given registry.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state",
			Help:      "Current circuit state (0=closed, 1=half-open, 2=open), by component.",
		}, []string{"component"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuit_breaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit state transitions, by component and new state.",
		}, []string{"component", "to"}),
	}

	reg.MustRegister(m.State, m.StateChanges)
	return m
}

// Record notes a transition of component's breaker into state.
func (m *BreakerMetrics) Record(component, to string, state float64) {
	if m == nil {
		return
	}
	m.StateChanges.WithLabelValues(component, to).Inc()
	m.State.WithLabelValues(component).Set(state)
}
