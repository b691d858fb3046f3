package offline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

// DrainReport summarizes one drain pass
type DrainReport struct {
	Skipped   bool
	Attempted int
	Sent      int
	Failed    int
	Remaining int
	Duration  time.Duration
}

// DrainQueue tries every queued submission once, oldest first. A row is
// deleted only after its delivery is confirmed; failures stay queued and do
// not stop the pass. A call while another drain is running returns
// immediately with Skipped set. Caller cancellation does not interrupt a
// pass that has started.
func (m *Manager) DrainQueue(ctx context.Context) (DrainReport, error) {
	if !m.syncing.CompareAndSwap(false, true) {
		if m.rec != nil {
			m.rec.RecordDrain(metrics.DrainSkipped, 0)
		}
		return DrainReport{Skipped: true}, nil
	}
	defer func() {
		m.syncing.Store(false)
		m.notify()
	}()
	m.notify()

	ctx = context.WithoutCancel(ctx)
	start := m.now()

	if m.remote == nil {
		return DrainReport{}, errors.Newf("no remote configured").
			Component("offline").
			Category(errors.CategoryState).
			Build()
	}

	m.mu.Lock()
	rows, err := m.store.ListPending(ctx)
	m.mu.Unlock()
	if err != nil {
		return DrainReport{}, err
	}

	report := DrainReport{Attempted: len(rows)}
	for i := range rows {
		if m.drainOne(ctx, &rows[i]) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	m.mu.Lock()
	count, err := m.store.CountPending(ctx)
	if err == nil {
		m.pending = int(count)
	}
	m.lastDrain = m.now()
	pending := m.pending
	m.mu.Unlock()
	if err != nil {
		return report, err
	}

	report.Remaining = pending
	report.Duration = m.now().Sub(start)
	m.recordPending(pending)
	if m.rec != nil {
		result := metrics.DrainCompleted
		if report.Failed > 0 {
			result = metrics.DrainPartial
		}
		m.rec.RecordDrain(result, report.Duration.Seconds())
	}
	if report.Attempted > 0 {
		m.log.Info("queue drain finished",
			logger.Int("attempted", report.Attempted),
			logger.Int("sent", report.Sent),
			logger.Int("failed", report.Failed),
			logger.Int("remaining", report.Remaining))
	}
	return report, nil
}

// drainOne attempts one row and reports whether it was delivered and removed
func (m *Manager) drainOne(ctx context.Context, row *datastore.PendingSubmission) bool {
	log := m.log.With(
		logger.Int64("queue_id", int64(row.ID)),
		logger.String("equipment_code", row.EquipmentCode))

	s, err := decodeRow(row)
	if err != nil {
		log.Warn("queued submission cannot be decoded, keeping it", logger.Error(err))
		m.recordFailure(ctx, row.ID, err)
		return false
	}

	if _, err := m.remote.Submit(ctx, s); err != nil {
		log.Debug("queued submission not delivered", logger.Error(err))
		m.recordFailure(ctx, row.ID, err)
		return false
	}

	m.mu.Lock()
	err = m.store.DeletePending(ctx, row.ID)
	m.mu.Unlock()
	if err != nil && !errors.Is(err, datastore.ErrNotFound) {
		// delivered but still stored: the next drain resends it
		log.Error("failed to remove delivered submission", logger.Error(err))
		return false
	}

	m.recordSubmission(metrics.OutcomeSent)
	log.Debug("queued submission delivered")
	return true
}

func (m *Manager) recordFailure(ctx context.Context, id uint, cause error) {
	m.recordSubmission(metrics.OutcomeFailed)
	m.mu.Lock()
	err := m.store.RecordAttempt(ctx, id, m.now(), cause.Error())
	m.mu.Unlock()
	if err != nil {
		m.log.Warn("failed to record delivery attempt", logger.Error(err))
	}
}

func decodeRow(row *datastore.PendingSubmission) (*checklist.Submission, error) {
	var results []checklist.Result
	if err := json.Unmarshal(row.Results, &results); err != nil {
		return nil, errors.New(err).
			Component("offline").
			Category(errors.CategoryFileParsing).
			Context("queue_id", row.ID).
			Build()
	}
	return &checklist.Submission{
		EquipmentCode: row.EquipmentCode,
		PerformedBy:   row.PerformedBy,
		Results:       results,
		Notes:         row.Notes,
		CompletedAt:   row.CompletedAt,
	}, nil
}

// PendingItem is a queued submission as shown to an operator
type PendingItem struct {
	ID            uint
	Reference     string
	EquipmentCode string
	PerformedBy   string
	ResultCount   int
	QueuedAt      time.Time
	Attempts      int
	LastError     string
}

// ListPending returns the queue in drain order
func (m *Manager) ListPending(ctx context.Context) ([]PendingItem, error) {
	m.mu.Lock()
	rows, err := m.store.ListPending(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	items := make([]PendingItem, len(rows))
	for i := range rows {
		r := &rows[i]
		item := PendingItem{
			ID:            r.ID,
			Reference:     r.Reference,
			EquipmentCode: r.EquipmentCode,
			PerformedBy:   r.PerformedBy,
			QueuedAt:      r.QueuedAt,
			Attempts:      r.Attempts,
			LastError:     r.LastError,
		}
		var results []json.RawMessage
		if json.Unmarshal(r.Results, &results) == nil {
			item.ResultCount = len(results)
		}
		items[i] = item
	}
	return items, nil
}

// RemovePending deletes a queued submission without delivering it. This is
// the only way an unconfirmed submission leaves the queue.
func (m *Manager) RemovePending(ctx context.Context, id uint) error {
	m.mu.Lock()
	if err := m.store.DeletePending(ctx, id); err != nil {
		m.mu.Unlock()
		return err
	}
	count, err := m.store.CountPending(ctx)
	if err == nil {
		m.pending = int(count)
	}
	pending := m.pending
	m.mu.Unlock()

	m.recordPending(pending)
	m.recordSubmission(metrics.OutcomeRemoved)
	m.log.Warn("queued submission removed without delivery", logger.Int64("queue_id", int64(id)))
	m.notify()
	return err
}
