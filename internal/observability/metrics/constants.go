// Package metrics provides the Prometheus collectors used by FieldScan.
package metrics

// Label values shared across collectors
const (
	OutcomeSent          = "sent"
	OutcomeQueued        = "queued"
	OutcomeFailed        = "failed"
	OutcomeRemoved       = "removed"
	DrainCompleted       = "completed"
	DrainPartial         = "partial"
	DrainSkipped         = "skipped"
	CacheHit             = "hit"
	CacheMiss            = "miss"
	CacheExpired         = "expired"
	CacheNetwork         = "network"
	FrameProcessed       = "processed"
	FrameDropped         = "dropped"
	FrameStale           = "stale"
	FrameFailed          = "failed"
	namespace            = "fieldscan"
	subsystemSync        = "sync"
	subsystemRecognition = "recognition"
	subsystemBackend     = "backend"
	subsystemChecklist   = "checklist"
)

// Histogram bucket parameters
const (
	BucketStart5ms = 0.005
	BucketFactor2  = 2
	BucketCount12  = 12
)
