// Package offline keeps checklist data usable without connectivity: a
// checklist cache with a validity window and a durable queue of submissions
// awaiting confirmed delivery.
package offline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fieldscan/fieldscan/internal/backend"
	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

var (
	// ErrCacheMiss means no valid cached checklist exists for the code
	ErrCacheMiss = errors.NewStd("checklist not cached")
	// ErrChecklistUnavailable means neither the cache nor the network could
	// provide the checklist
	ErrChecklistUnavailable = errors.NewStd("checklist unavailable")
)

// Remote is the network side used by the manager
type Remote interface {
	FetchChecklist(ctx context.Context, req backend.FetchRequest) (*checklist.Checklist, error)
	Submit(ctx context.Context, s *checklist.Submission) (*backend.SubmitResult, error)
}

// CatalogueSource lists the backend's equipment codes
type CatalogueSource interface {
	EquipmentCodes(ctx context.Context) ([]equipment.Definition, error)
}

// Reachability reports whether the backend is currently reachable
type Reachability interface {
	IsReachable() bool
}

// Recorder receives sync metrics. *metrics.SyncMetrics implements it.
type Recorder interface {
	SetPending(n int)
	RecordSubmission(outcome string)
	RecordDrain(result string, seconds float64)
	RecordChecklistRead(result string)
}

// QueueState is what the presentation layer shows: pending count and
// whether a drain is running
type QueueState struct {
	Pending   int
	Syncing   bool
	LastDrain time.Time
}

// Options configures a Manager
type Options struct {
	ChecklistTTL time.Duration
	Reachability Reachability
	Recorder     Recorder
	Logger       logger.Logger
	Clock        func() time.Time
}

// Manager owns every persisted entity. Store access is serialized by one
// mutex that is never held across a network call.
type Manager struct {
	store  datastore.Interface
	remote Remote
	reach  Reachability
	rec    Recorder
	ttl    time.Duration
	now    func() time.Time
	log    logger.Logger

	mu        sync.Mutex // store access, pending, lastDrain
	pending   int
	lastDrain time.Time
	syncing   atomic.Bool

	listenerMu sync.Mutex
	listeners  map[uint64]func(QueueState)
	nextID     uint64
}

// NewManager returns a manager and loads the pending count from the store
func NewManager(ctx context.Context, store datastore.Interface, remote Remote, opts Options) (*Manager, error) {
	m := &Manager{
		store:     store,
		remote:    remote,
		reach:     opts.Reachability,
		rec:       opts.Recorder,
		ttl:       opts.ChecklistTTL,
		now:       opts.Clock,
		log:       opts.Logger,
		listeners: make(map[uint64]func(QueueState)),
	}
	if m.ttl <= 0 {
		m.ttl = 24 * time.Hour
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = logger.Global().Module("offline")
	}

	n, err := store.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	m.pending = int(n)
	m.recordPending(m.pending)
	return m, nil
}

// State returns the current queue state
func (m *Manager) State() QueueState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() QueueState {
	return QueueState{Pending: m.pending, Syncing: m.syncing.Load(), LastDrain: m.lastDrain}
}

// PendingCount is State().Pending
func (m *Manager) PendingCount() int {
	return m.State().Pending
}

// OnChange registers fn to be called after every queue state change. The
// returned func unregisters it. fn must not block.
func (m *Manager) OnChange(fn func(QueueState)) (cancel func()) {
	m.listenerMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenerMu.Unlock()

	return func() {
		m.listenerMu.Lock()
		delete(m.listeners, id)
		m.listenerMu.Unlock()
	}
}

func (m *Manager) notify() {
	state := m.State()

	m.listenerMu.Lock()
	fns := make([]func(QueueState), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenerMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (m *Manager) reachable() bool {
	return m.reach == nil || m.reach.IsReachable()
}

func (m *Manager) recordPending(n int) {
	if m.rec != nil {
		m.rec.SetPending(n)
	}
}

func (m *Manager) recordSubmission(outcome string) {
	if m.rec != nil {
		m.rec.RecordSubmission(outcome)
	}
}

func (m *Manager) recordRead(result string) {
	if m.rec != nil {
		m.rec.RecordChecklistRead(result)
	}
}

// CacheChecklist stores cl for its code, replacing any previous entry, and
// stamps it with the current time
func (m *Manager) CacheChecklist(ctx context.Context, cl *checklist.Checklist) error {
	row := &datastore.CachedChecklist{
		EquipmentCode:    normCode(cl.EquipmentCode),
		Checkpoints:      cl.Checkpoints,
		Tips:             cl.Tips,
		EstimatedMinutes: cl.EstimatedMinutes,
		CachedAt:         m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SaveChecklist(ctx, row)
}

// GetCachedChecklist returns the cached checklist while it is younger than
// the TTL. Expired rows are left in place and reported as ErrCacheMiss.
func (m *Manager) GetCachedChecklist(ctx context.Context, code string) (*checklist.Checklist, error) {
	code = normCode(code)
	m.mu.Lock()
	row, err := m.store.GetChecklist(ctx, code)
	m.mu.Unlock()

	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			m.recordRead(metrics.CacheMiss)
			return nil, cacheMiss(code, "not_cached")
		}
		return nil, err
	}

	if m.now().Sub(row.CachedAt) >= m.ttl {
		m.recordRead(metrics.CacheExpired)
		return nil, cacheMiss(code, "expired")
	}

	m.recordRead(metrics.CacheHit)
	return &checklist.Checklist{
		EquipmentCode:    row.EquipmentCode,
		Checkpoints:      row.Checkpoints,
		Tips:             row.Tips,
		EstimatedMinutes: row.EstimatedMinutes,
		FromCache:        true,
		CachedAt:         row.CachedAt,
	}, nil
}

func normCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func cacheMiss(code, reason string) error {
	return errors.New(ErrCacheMiss).
		Component("offline").
		Category(errors.CategoryNotFound).
		Context("equipment_code", code).
		Context("reason", reason).
		Build()
}

// GetChecklist serves from the cache first and falls back to the network,
// caching what it fetched. ErrChecklistUnavailable wraps the network error
// when both fail.
func (m *Manager) GetChecklist(ctx context.Context, req backend.FetchRequest) (*checklist.Checklist, error) {
	cl, err := m.GetCachedChecklist(ctx, req.EquipmentCode)
	if err == nil {
		return cl, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		m.log.Warn("checklist cache read failed", logger.String("equipment_code", req.EquipmentCode), logger.Error(err))
	}

	if m.remote == nil || !m.reachable() {
		return nil, unavailable(req.EquipmentCode, err)
	}

	cl, fetchErr := m.remote.FetchChecklist(ctx, req)
	if fetchErr != nil {
		m.log.Info("checklist fetch failed",
			logger.String("equipment_code", req.EquipmentCode),
			logger.Error(fetchErr))
		return nil, unavailable(req.EquipmentCode, fetchErr)
	}
	m.recordRead(metrics.CacheNetwork)

	if err := m.CacheChecklist(ctx, cl); err != nil {
		m.log.Warn("failed to cache fetched checklist",
			logger.String("equipment_code", cl.EquipmentCode),
			logger.Error(err))
	}
	return cl, nil
}

func unavailable(code string, cause error) error {
	return errors.New(errors.Join(ErrChecklistUnavailable, cause)).
		Component("offline").
		Category(errors.CategoryNotFound).
		Context("equipment_code", code).
		Build()
}

// PruneExpired deletes checklist rows at or past the TTL. Optional
// housekeeping; reads never depend on it.
func (m *Manager) PruneExpired(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-m.ttl).Add(time.Nanosecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.store.DeleteChecklistsBefore(ctx, cutoff)
	if err == nil && n > 0 {
		m.log.Debug("pruned expired checklists", logger.Int64("count", n))
	}
	return n, err
}

// CacheEquipmentCodes replaces the offline equipment catalogue
func (m *Manager) CacheEquipmentCodes(ctx context.Context, defs []equipment.Definition) error {
	now := m.now()
	rows := make([]datastore.CachedEquipmentCode, len(defs))
	for i, d := range defs {
		rows[i] = datastore.CachedEquipmentCode{Code: d.Code, Name: d.Name, Category: string(d.Category), CachedAt: now}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.SaveEquipmentCodes(ctx, rows)
}

// CachedEquipmentCodes returns the offline equipment catalogue
func (m *Manager) CachedEquipmentCodes(ctx context.Context) ([]equipment.Definition, error) {
	m.mu.Lock()
	rows, err := m.store.ListEquipmentCodes(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	defs := make([]equipment.Definition, len(rows))
	for i, r := range rows {
		defs[i] = equipment.Definition{Code: r.Code, Name: r.Name, Category: equipment.Category(r.Category)}
	}
	return defs, nil
}

// RefreshCatalogue fetches the catalogue from src and persists it. On
// failure the cached catalogue is returned with the fetch error.
func (m *Manager) RefreshCatalogue(ctx context.Context, src CatalogueSource) ([]equipment.Definition, error) {
	defs, err := src.EquipmentCodes(ctx)
	if err != nil {
		cached, cacheErr := m.CachedEquipmentCodes(ctx)
		if cacheErr != nil {
			return nil, errors.Join(err, cacheErr)
		}
		return cached, err
	}
	if err := m.CacheEquipmentCodes(ctx, defs); err != nil {
		return defs, err
	}
	return defs, nil
}

// Outcome says what happened to a submission
type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeQueued Outcome = "queued"
)

// Receipt describes a handled submission. SendErr is the delivery error
// that caused queuing, if any.
type Receipt struct {
	Outcome   Outcome
	Reference string
	QueueID   uint
	JobID     string
	SendErr   error
}

// Submit sends s immediately when reachable and queues it otherwise or on
// any send failure. A nil error means the submission is either confirmed or
// durably queued.
func (m *Manager) Submit(ctx context.Context, s *checklist.Submission) (*Receipt, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var sendErr error
	if m.remote != nil && m.reachable() {
		res, err := m.remote.Submit(ctx, s)
		if err == nil {
			m.recordSubmission(metrics.OutcomeSent)
			m.log.Info("submission sent",
				logger.String("equipment_code", s.EquipmentCode),
				logger.String("job_id", res.JobID))
			return &Receipt{Outcome: OutcomeSent, JobID: res.JobID}, nil
		}
		sendErr = err
		m.log.Info("submission send failed, queuing",
			logger.String("equipment_code", s.EquipmentCode),
			logger.Error(err))
	}

	receipt, err := m.Enqueue(ctx, s)
	if err != nil {
		return nil, err
	}
	receipt.SendErr = sendErr
	return receipt, nil
}

// Enqueue persists s in the pending queue
func (m *Manager) Enqueue(ctx context.Context, s *checklist.Submission) (*Receipt, error) {
	blob, err := json.Marshal(s.Results)
	if err != nil {
		return nil, errors.New(err).
			Component("offline").
			Category(errors.CategoryValidation).
			Context("operation", "encode_results").
			Build()
	}

	row := &datastore.PendingSubmission{
		Reference:     uuid.NewString(),
		EquipmentCode: s.EquipmentCode,
		PerformedBy:   s.PerformedBy,
		Notes:         s.Notes,
		CompletedAt:   s.CompletedAt,
		Results:       blob,
		QueuedAt:      m.now(),
	}

	m.mu.Lock()
	if err := m.store.EnqueueSubmission(ctx, row); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.pending++
	pending := m.pending
	m.mu.Unlock()

	m.recordPending(pending)
	m.recordSubmission(metrics.OutcomeQueued)
	m.log.Info("submission queued",
		logger.String("equipment_code", s.EquipmentCode),
		logger.String("reference", row.Reference),
		logger.Int("pending", pending))
	m.notify()

	return &Receipt{Outcome: OutcomeQueued, Reference: row.Reference, QueueID: row.ID}, nil
}
