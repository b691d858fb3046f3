package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackendMetrics tracks calls to the backend API
type BackendMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	collectors      []prometheus.Collector
}

// NewBackendMetrics creates and registers the backend collectors
func NewBackendMetrics(registry prometheus.Registerer) (*BackendMetrics, error) {
	m := &BackendMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBackend,
			Name:      "requests_total",
			Help:      "Backend HTTP requests by method and status",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemBackend,
			Name:      "request_duration_seconds",
			Help:      "Backend HTTP request latency",
			Buckets:   prometheus.ExponentialBuckets(BucketStart5ms, BucketFactor2, BucketCount12),
		}, []string{"method"}),
	}
	m.collectors = []prometheus.Collector{m.requestsTotal, m.requestDuration}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *BackendMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *BackendMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordRequest counts a request. status 0 means a transport error.
func (m *BackendMetrics) RecordRequest(method string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
