package metrics

import "github.com/prometheus/client_golang/prometheus"

// RegistryMetrics holds Prometheus metrics for connection registry operations.
type RegistryMetrics struct {
	Operations   *prometheus.CounterVec
	SnapshotSize prometheus.Gauge
}

// NewRegistryMetrics creates and registers registry metrics on the given registry.
func NewRegistryMetrics(reg prometheus.Registerer) *RegistryMetrics {
	m := &RegistryMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Total number of registry operations, by operation and result.",
		}, []string{"operation", "result"}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "snapshot_size",
			Help:      "Number of connections in the most recent registry enumeration.",
		}),
	}

	reg.MustRegister(m.Operations, m.SnapshotSize)
	return m
}

// Observe records one registry operation outcome.
func (m *RegistryMetrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(operation, result).Inc()
}
