// model.go defines the persisted row shapes for the offline store
package datastore

import (
	"time"

	"github.com/fieldscan/fieldscan/internal/checklist"
)

// CachedChecklist is a cached checklist keyed by equipment code. Last write
// wins per code.
type CachedChecklist struct {
	EquipmentCode    string                 `gorm:"primaryKey;size:16"`
	Checkpoints      []checklist.Checkpoint `gorm:"serializer:json"`
	Tips             []string               `gorm:"serializer:json"`
	EstimatedMinutes int
	CachedAt         time.Time `gorm:"index;not null"`
}

// PendingSubmission is a queued, not yet confirmed submission. Results holds
// the serialized result list and is opaque to the store.
type PendingSubmission struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	Reference     string `gorm:"uniqueIndex;size:36;not null"`
	EquipmentCode string `gorm:"index;size:16;not null"`
	PerformedBy   string `gorm:"not null"`
	Notes         string
	CompletedAt   time.Time
	Results       []byte    `gorm:"not null"`
	QueuedAt      time.Time `gorm:"index;not null"`
	Attempts      int
	LastAttemptAt *time.Time
	LastError     string
}

// CachedEquipmentCode is one entry of the equipment catalogue kept for
// offline browsing
type CachedEquipmentCode struct {
	Code     string `gorm:"primaryKey;size:16"`
	Name     string `gorm:"not null"`
	Category string `gorm:"size:32"`
	CachedAt time.Time
}
