package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine's operation counters. Collectors are created
// unregistered so multiple engines can coexist in one process (tests);
// Describe/Collect is exposed through the Collector method for the serving
// binary to register.
type metrics struct {
	operations *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merosign",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "State-changing operations processed, by action.",
		}, []string{"action"}),
	}
}

// Collector returns the engine's metrics for registration with a prometheus
// registry.
func (e *Engine) Collector() prometheus.Collector {
	return e.metrics.operations
}
