// Package checklist defines the inspection domain types shared by the
// backend client, the offline store and the CLI.
package checklist

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// Status is the outcome recorded for one checkpoint
type Status string

const (
	StatusOK          Status = "ok"
	StatusDeviation   Status = "deviation"
	StatusNotAssessed Status = "not_assessed"
)

// ParseStatus accepts the canonical values and the Norwegian forms used
// by older clients. Empty input is not_assessed.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok", "godkjent", "approved":
		return StatusOK, nil
	case "deviation", "avvik":
		return StatusDeviation, nil
	case "", "not_assessed", "not-assessed", "ikke_vurdert":
		return StatusNotAssessed, nil
	}
	return "", errors.Newf("unknown checkpoint status %q", s).
		Component("checklist").
		Category(errors.CategoryValidation).
		Build()
}

// Valid reports whether s is one of the canonical statuses
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusDeviation, StatusNotAssessed:
		return true
	}
	return false
}

// Criticality is ordinal: Low < Medium < High
type Criticality int

const (
	CriticalityLow Criticality = iota + 1
	CriticalityMedium
	CriticalityHigh
)

func (c Criticality) String() string {
	switch c {
	case CriticalityLow:
		return "low"
	case CriticalityMedium:
		return "medium"
	case CriticalityHigh:
		return "high"
	}
	return "unknown"
}

// ParseCriticality maps low/medium/high (and the Norwegian lav/middels/høy)
func ParseCriticality(s string) (Criticality, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "lav":
		return CriticalityLow, true
	case "medium", "middels":
		return CriticalityMedium, true
	case "high", "høy", "hoy":
		return CriticalityHigh, true
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler
func (c Criticality) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Criticality) UnmarshalText(b []byte) error {
	v, ok := ParseCriticality(string(b))
	if !ok {
		return fmt.Errorf("unknown criticality %q", string(b))
	}
	*c = v
	return nil
}

// Checkpoint is an inspection point definition. Immutable once fetched.
type Checkpoint struct {
	ID           int          `json:"id" yaml:"id"`
	Text         string       `json:"text" yaml:"text"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type         string       `json:"type,omitempty" yaml:"type,omitempty"`
	Criticality  *Criticality `json:"criticality,omitempty" yaml:"criticality,omitempty"`
	CanAutoFetch bool         `json:"can_auto_fetch,omitempty" yaml:"can_auto_fetch,omitempty"`
}

// IsMeasurement reports whether the checkpoint expects a numeric value
func (c Checkpoint) IsMeasurement() bool {
	return strings.EqualFold(c.Type, "measurement") || strings.EqualFold(c.Type, "måling")
}

// Photo is an attachment on a result
type Photo struct {
	Name        string `json:"name" yaml:"name"`
	ContentType string `json:"content_type" yaml:"content_type"`
	Data        []byte `json:"data,omitempty" yaml:"data,omitempty"`
}

// Result is the technician's outcome for one checkpoint
type Result struct {
	CheckpointID int     `json:"checkpoint_id" yaml:"checkpoint_id"`
	Status       Status  `json:"status" yaml:"status"`
	Value        string  `json:"value,omitempty" yaml:"value,omitempty"`
	Comment      string  `json:"comment,omitempty" yaml:"comment,omitempty"`
	Photos       []Photo `json:"photos,omitempty" yaml:"photos,omitempty"`
}

// NewResults returns one not_assessed result per checkpoint, in order
func NewResults(checkpoints []Checkpoint) []Result {
	results := make([]Result, len(checkpoints))
	for i, cp := range checkpoints {
		results[i] = Result{CheckpointID: cp.ID, Status: StatusNotAssessed}
	}
	return results
}

// Submission is a completed checklist, sent or queued for sending
type Submission struct {
	EquipmentCode string    `json:"equipment_code" yaml:"equipment_code"`
	PerformedBy   string    `json:"performed_by" yaml:"performed_by"`
	Results       []Result  `json:"results" yaml:"results"`
	Notes         string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	CompletedAt   time.Time `json:"completed_at" yaml:"completed_at"`
}

// Validate checks the submission before it is sent or queued
func (s *Submission) Validate() error {
	if strings.TrimSpace(s.EquipmentCode) == "" {
		return validationError("equipment code is required")
	}
	if strings.TrimSpace(s.PerformedBy) == "" {
		return validationError("performer is required")
	}

	seen := make(map[int]struct{}, len(s.Results))
	for _, r := range s.Results {
		if r.CheckpointID <= 0 {
			return validationError(fmt.Sprintf("invalid checkpoint id %d", r.CheckpointID))
		}
		if _, dup := seen[r.CheckpointID]; dup {
			return validationError(fmt.Sprintf("duplicate result for checkpoint %d", r.CheckpointID))
		}
		seen[r.CheckpointID] = struct{}{}
		if r.Status != "" && !r.Status.Valid() {
			return validationError(fmt.Sprintf("invalid status %q for checkpoint %d", r.Status, r.CheckpointID))
		}
	}
	return nil
}

// Counts returns the number of results per status. Empty status counts as
// not_assessed.
func (s *Submission) Counts() map[Status]int {
	counts := make(map[Status]int, 3)
	for _, r := range s.Results {
		st := r.Status
		if st == "" {
			st = StatusNotAssessed
		}
		counts[st]++
	}
	return counts
}

func validationError(msg string) error {
	return errors.Newf("invalid submission: %s", msg).
		Component("checklist").
		Category(errors.CategoryValidation).
		Build()
}

// Checklist is the set of checkpoints for one equipment code
type Checklist struct {
	EquipmentCode    string       `json:"equipment_code" yaml:"equipment_code"`
	Checkpoints      []Checkpoint `json:"checkpoints" yaml:"checkpoints"`
	Tips             []string     `json:"tips,omitempty" yaml:"tips,omitempty"`
	EstimatedMinutes int          `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty"`
	FromCache        bool         `json:"-" yaml:"-"`
	CachedAt         time.Time    `json:"-" yaml:"-"`
}
