package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics covers the pending-submission queue and the checklist cache
type SyncMetrics struct {
	pendingGauge      prometheus.Gauge
	submissionsTotal  *prometheus.CounterVec
	drainsTotal       *prometheus.CounterVec
	checklistCache    *prometheus.CounterVec
	drainDuration     prometheus.Histogram
	reachabilityGauge prometheus.Gauge

	collectors []prometheus.Collector
}

// NewSyncMetrics creates and registers the sync collectors
func NewSyncMetrics(registry prometheus.Registerer) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SyncMetrics) initMetrics() {
	m.pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemSync,
		Name:      "pending_submissions",
		Help:      "Submissions persisted and awaiting confirmed delivery",
	})
	m.submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemSync,
		Name:      "submissions_total",
		Help:      "Submission outcomes",
	}, []string{"outcome"}) // sent, queued, failed, removed
	m.drainsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemSync,
		Name:      "drains_total",
		Help:      "Queue drain passes by result",
	}, []string{"result"}) // completed, partial, skipped
	m.drainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemSync,
		Name:      "drain_duration_seconds",
		Help:      "Time taken by one drain pass",
		Buckets:   prometheus.ExponentialBuckets(BucketStart5ms, BucketFactor2, BucketCount12),
	})
	m.reachabilityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemSync,
		Name:      "backend_reachable",
		Help:      "1 when the backend answered the last probe",
	})
	m.checklistCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemChecklist,
		Name:      "cache_total",
		Help:      "Checklist reads by source",
	}, []string{"result"}) // hit, miss, expired, network

	m.collectors = []prometheus.Collector{
		m.pendingGauge, m.submissionsTotal, m.drainsTotal,
		m.drainDuration, m.reachabilityGauge, m.checklistCache,
	}
}

// Describe implements prometheus.Collector
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// SetPending sets the pending gauge
func (m *SyncMetrics) SetPending(n int) {
	m.pendingGauge.Set(float64(n))
}

// RecordSubmission counts one submission outcome
func (m *SyncMetrics) RecordSubmission(outcome string) {
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordDrain counts a drain pass and observes its duration
func (m *SyncMetrics) RecordDrain(result string, seconds float64) {
	m.drainsTotal.WithLabelValues(result).Inc()
	if result != DrainSkipped {
		m.drainDuration.Observe(seconds)
	}
}

// RecordChecklistRead counts a checklist read by source
func (m *SyncMetrics) RecordChecklistRead(result string) {
	m.checklistCache.WithLabelValues(result).Inc()
}

// SetReachable updates the reachability gauge
func (m *SyncMetrics) SetReachable(reachable bool) {
	if reachable {
		m.reachabilityGauge.Set(1)
		return
	}
	m.reachabilityGauge.Set(0)
}
