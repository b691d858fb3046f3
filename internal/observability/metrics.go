// Package observability owns the Prometheus registry and the /metrics
// endpoint.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

// Metrics holds all metric collectors
type Metrics struct {
	registry    *prometheus.Registry
	Sync        *metrics.SyncMetrics
	Recognition *metrics.RecognitionMetrics
	Backend     *metrics.BackendMetrics
}

// NewMetrics creates a registry with every collector registered
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	syncMetrics, err := metrics.NewSyncMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	recognitionMetrics, err := metrics.NewRecognitionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition metrics: %w", err)
	}
	backendMetrics, err := metrics.NewBackendMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend metrics: %w", err)
	}

	return &Metrics{
		registry:    registry,
		Sync:        syncMetrics,
		Recognition: recognitionMetrics,
		Backend:     backendMetrics,
	}, nil
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers mounts /metrics on mux
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
