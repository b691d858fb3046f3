package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RecognitionMetrics counts classifier matches and dropped frames
type RecognitionMetrics struct {
	matchesTotal *prometheus.CounterVec
	framesTotal  *prometheus.CounterVec
	collectors   []prometheus.Collector
}

// NewRecognitionMetrics creates and registers the recognition collectors
func NewRecognitionMetrics(registry prometheus.Registerer) (*RecognitionMetrics, error) {
	m := &RecognitionMetrics{
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRecognition,
			Name:      "matches_total",
			Help:      "Equipment matches by classifier tier",
		}, []string{"tier"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRecognition,
			Name:      "frames_total",
			Help:      "Live frames by handling",
		}, []string{"result"}),
	}
	m.collectors = []prometheus.Collector{m.matchesTotal, m.framesTotal}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *RecognitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *RecognitionMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordMatch counts a match for tier
func (m *RecognitionMetrics) RecordMatch(tier string) {
	m.matchesTotal.WithLabelValues(tier).Inc()
}

// RecordFrame counts a live frame by result
func (m *RecognitionMetrics) RecordFrame(result string) {
	m.framesTotal.WithLabelValues(result).Inc()
}
