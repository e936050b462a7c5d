package loader

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes loader progress to Prometheus.
type Metrics struct {
	registry *prometheus.Registry

	completed      prometheus.Counter
	failed         prometheus.Counter
	inFlight       prometheus.Gauge
	registryStates prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anvil2voxel",
			Name:      "files_completed_total",
			Help:      "Region files finished, including failures.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "anvil2voxel",
			Name:      "files_failed_total",
			Help:      "Region files that failed and were skipped.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anvil2voxel",
			Name:      "files_in_flight",
			Help:      "Region files currently being processed.",
		}),
		registryStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "anvil2voxel",
			Name:      "registry_states",
			Help:      "Block states assigned a global id.",
		}),
	}
	m.registry.MustRegister(m.completed, m.failed, m.inFlight, m.registryStates)
	return m
}

// SetRegistryStates records the current registry size.
func (m *Metrics) SetRegistryStates(n int) {
	m.registryStates.Set(float64(n))
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
