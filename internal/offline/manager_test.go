package offline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fieldscan/fieldscan/internal/backend"
	"github.com/fieldscan/fieldscan/internal/checklist"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

var errOffline = errors.Newf("connection refused").Category(errors.CategoryNetwork).Build()

type fakeRemote struct {
	mu        sync.Mutex
	fetches   int
	submitted []string
	fetch     func(req backend.FetchRequest) (*checklist.Checklist, error)
	submit    func(s *checklist.Submission) error
}

func (f *fakeRemote) FetchChecklist(_ context.Context, req backend.FetchRequest) (*checklist.Checklist, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.fetch == nil {
		return nil, errOffline
	}
	return f.fetch(req)
}

func (f *fakeRemote) Submit(_ context.Context, s *checklist.Submission) (*backend.SubmitResult, error) {
	if f.submit != nil {
		if err := f.submit(s); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, s.Notes)
	f.mu.Unlock()
	return &backend.SubmitResult{Success: true, JobID: "job-" + s.Notes}, nil
}

func (f *fakeRemote) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

type switchable struct{ up atomic.Bool }

func (s *switchable) IsReachable() bool { return s.up.Load() }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store  *datastore.SQLiteStore
	remote *fakeRemote
	reach  *switchable
	clock  *clock
	mgr    *Manager
}

func openStore(t *testing.T, path string) *datastore.SQLiteStore {
	t.Helper()
	store := datastore.NewSQLiteStore(path, logger.NewSlogLogger(nil, logger.LogLevelError, nil))
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  openStore(t, filepath.Join(t.TempDir(), "offline.db")),
		remote: &fakeRemote{},
		reach:  &switchable{},
		clock:  &clock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	f.mgr = f.manager(t)
	return f
}

func (f *fixture) manager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(context.Background(), f.store, f.remote, Options{
		ChecklistTTL: 24 * time.Hour,
		Reachability: f.reach,
		Logger:       logger.NewSlogLogger(nil, logger.LogLevelError, nil),
		Clock:        f.clock.Now,
	})
	require.NoError(t, err)
	return m
}

func submission(note string) *checklist.Submission {
	return &checklist.Submission{
		EquipmentCode: "PU",
		PerformedBy:   "tech-1",
		Results: []checklist.Result{
			{CheckpointID: 1, Status: checklist.StatusOK},
			{CheckpointID: 2, Status: checklist.StatusDeviation, Comment: "belt worn"},
		},
		Notes:       note,
		CompletedAt: time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC),
	}
}

func pumpChecklist() *checklist.Checklist {
	return &checklist.Checklist{
		EquipmentCode:    "PU",
		Checkpoints:      []checklist.Checkpoint{{ID: 1, Text: "Check noise"}, {ID: 2, Text: "Check belt"}},
		Tips:             []string{"Isolate before opening"},
		EstimatedMinutes: 4,
	}
}

func TestCachedChecklist_ValidityWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.CacheChecklist(ctx, pumpChecklist()))

	f.clock.Advance(86399 * time.Second)
	cl, err := f.mgr.GetCachedChecklist(ctx, "pu")
	require.NoError(t, err)
	assert.True(t, cl.FromCache)
	assert.Len(t, cl.Checkpoints, 2)
	assert.Equal(t, []string{"Isolate before opening"}, cl.Tips)

	f.clock.Advance(time.Second)
	_, err = f.mgr.GetCachedChecklist(ctx, "PU")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestCachedChecklist_MissingCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.GetCachedChecklist(context.Background(), "VX")
	require.ErrorIs(t, err, ErrCacheMiss)
	assert.True(t, errors.IsNotFound(err))
}

func TestCacheChecklist_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cl := pumpChecklist()
	require.NoError(t, f.mgr.CacheChecklist(ctx, cl))
	require.NoError(t, f.mgr.CacheChecklist(ctx, cl))

	got, err := f.mgr.GetCachedChecklist(ctx, "PU")
	require.NoError(t, err)
	assert.Equal(t, cl.Checkpoints, got.Checkpoints)
	assert.Equal(t, cl.EstimatedMinutes, got.EstimatedMinutes)
}

func TestCacheChecklist_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.CacheChecklist(ctx, pumpChecklist()))

	newer := pumpChecklist()
	newer.Checkpoints = newer.Checkpoints[:1]
	f.clock.Advance(time.Hour)
	require.NoError(t, f.mgr.CacheChecklist(ctx, newer))

	got, err := f.mgr.GetCachedChecklist(ctx, "PU")
	require.NoError(t, err)
	assert.Len(t, got.Checkpoints, 1)
	assert.True(t, got.CachedAt.Equal(f.clock.Now()))
}

func TestGetChecklist(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips network", func(t *testing.T) {
		f := newFixture(t)
		f.reach.up.Store(true)
		require.NoError(t, f.mgr.CacheChecklist(ctx, pumpChecklist()))

		cl, err := f.mgr.GetChecklist(ctx, backend.FetchRequest{EquipmentCode: "PU"})
		require.NoError(t, err)
		assert.True(t, cl.FromCache)
		assert.Zero(t, f.remote.fetches)
	})

	t.Run("miss fetches and caches", func(t *testing.T) {
		f := newFixture(t)
		f.reach.up.Store(true)
		f.remote.fetch = func(backend.FetchRequest) (*checklist.Checklist, error) { return pumpChecklist(), nil }

		cl, err := f.mgr.GetChecklist(ctx, backend.FetchRequest{EquipmentCode: "PU"})
		require.NoError(t, err)
		assert.False(t, cl.FromCache)

		cached, err := f.mgr.GetCachedChecklist(ctx, "PU")
		require.NoError(t, err)
		assert.Len(t, cached.Checkpoints, 2)
	})

	t.Run("offline without cache", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.mgr.GetChecklist(ctx, backend.FetchRequest{EquipmentCode: "PU"})
		require.ErrorIs(t, err, ErrChecklistUnavailable)
		assert.Zero(t, f.remote.fetches)
	})

	t.Run("expired entry is never served", func(t *testing.T) {
		f := newFixture(t)
		f.reach.up.Store(true)
		require.NoError(t, f.mgr.CacheChecklist(ctx, pumpChecklist()))
		f.clock.Advance(25 * time.Hour)

		_, err := f.mgr.GetChecklist(ctx, backend.FetchRequest{EquipmentCode: "PU"})
		require.ErrorIs(t, err, ErrChecklistUnavailable)
		assert.ErrorIs(t, err, errOffline)
		assert.Equal(t, 1, f.remote.fetches)
	})
}

func TestPruneExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mgr.CacheChecklist(ctx, pumpChecklist()))
	f.clock.Advance(12 * time.Hour)
	fan := pumpChecklist()
	fan.EquipmentCode = "VI"
	require.NoError(t, f.mgr.CacheChecklist(ctx, fan))

	f.clock.Advance(12 * time.Hour)
	n, err := f.mgr.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.mgr.GetCachedChecklist(ctx, "VI")
	require.NoError(t, err)
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("online success is not queued", func(t *testing.T) {
		f := newFixture(t)
		f.reach.up.Store(true)

		r, err := f.mgr.Submit(ctx, submission("a"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSent, r.Outcome)
		assert.Equal(t, "job-a", r.JobID)
		assert.Zero(t, f.mgr.PendingCount())
	})

	t.Run("offline is queued without a send attempt", func(t *testing.T) {
		f := newFixture(t)

		r, err := f.mgr.Submit(ctx, submission("a"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeQueued, r.Outcome)
		assert.NotEmpty(t, r.Reference)
		assert.NoError(t, r.SendErr)
		assert.Equal(t, 1, f.mgr.PendingCount())
		assert.Empty(t, f.remote.sent())
	})

	t.Run("send failure is queued", func(t *testing.T) {
		f := newFixture(t)
		f.reach.up.Store(true)
		f.remote.submit = func(*checklist.Submission) error { return errOffline }

		r, err := f.mgr.Submit(ctx, submission("a"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeQueued, r.Outcome)
		assert.ErrorIs(t, r.SendErr, errOffline)
		assert.Equal(t, 1, f.mgr.PendingCount())
	})

	t.Run("invalid submission is rejected", func(t *testing.T) {
		f := newFixture(t)
		s := submission("a")
		s.PerformedBy = ""

		_, err := f.mgr.Submit(ctx, s)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		assert.Zero(t, f.mgr.PendingCount())
	})
}

func TestQueue_SurvivesRestarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 5
	for i := range n {
		_, err := f.mgr.Enqueue(ctx, submission(fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	// simulate a process kill between runs
	require.NoError(t, f.store.Close())
	f.store = openStore(t, f.store.Path)
	f.mgr = f.manager(t)
	assert.Equal(t, n, f.mgr.PendingCount())

	items, err := f.mgr.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, n)
	for i, item := range items {
		assert.Equal(t, 2, item.ResultCount)
		assert.Equal(t, "PU", item.EquipmentCode)
		if i > 0 {
			assert.True(t, item.QueuedAt.After(items[i-1].QueuedAt))
		}
	}
}

func TestDrainQueue_AllDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 3 {
		_, err := f.mgr.Enqueue(ctx, submission(fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	report, err := f.mgr.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Sent)
	assert.Zero(t, report.Remaining)
	assert.Equal(t, []string{"s0", "s1", "s2"}, f.remote.sent())
	assert.Zero(t, f.mgr.PendingCount())
	assert.False(t, f.mgr.State().LastDrain.IsZero())
}

func TestDrainQueue_PartialFailureKeepsItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := range 4 {
		_, err := f.mgr.Enqueue(ctx, submission(fmt.Sprintf("s%d", i)))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	f.remote.submit = func(s *checklist.Submission) error {
		if s.Notes == "s2" {
			return errOffline
		}
		return nil
	}

	report, err := f.mgr.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Remaining)
	assert.Equal(t, []string{"s0", "s1", "s3"}, f.remote.sent())

	items, err := f.mgr.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.Contains(t, items[0].LastError, "connection refused")
}

func TestDrainQueue_UndecodableRowStays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.EnqueueSubmission(ctx, &datastore.PendingSubmission{
		Reference:     "broken",
		EquipmentCode: "PU",
		PerformedBy:   "tech-1",
		Results:       []byte("{not json"),
		QueuedAt:      f.clock.Now(),
	}))

	report, err := f.mgr.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, f.mgr.PendingCount())
	assert.Empty(t, f.remote.sent())
}

func TestDrainQueue_ReentrantCallIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Enqueue(ctx, submission("s0"))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.remote.submit = func(*checklist.Submission) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan DrainReport)
	go func() {
		r, _ := f.mgr.DrainQueue(ctx)
		done <- r
	}()

	<-entered
	assert.True(t, f.mgr.State().Syncing)
	second, err := f.mgr.DrainQueue(ctx)
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Sent)
	assert.False(t, f.mgr.State().Syncing)
	assert.Equal(t, []string{"s0"}, f.remote.sent())
}

func TestDrainQueue_CancelledContextFinishesPass(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Enqueue(context.Background(), submission("s0"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.mgr.DrainQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestRemovePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r, err := f.mgr.Enqueue(ctx, submission("s0"))
	require.NoError(t, err)

	require.NoError(t, f.mgr.RemovePending(ctx, r.QueueID))
	assert.Zero(t, f.mgr.PendingCount())

	err = f.mgr.RemovePending(ctx, r.QueueID)
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mu sync.Mutex
	var states []QueueState
	cancel := f.mgr.OnChange(func(s QueueState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	_, err := f.mgr.Enqueue(ctx, submission("s0"))
	require.NoError(t, err)
	_, err = f.mgr.DrainQueue(ctx)
	require.NoError(t, err)
	cancel()
	_, err = f.mgr.Enqueue(ctx, submission("s1"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 3)
	assert.Equal(t, QueueState{Pending: 1}, states[0])
	assert.True(t, states[1].Syncing)
	assert.False(t, states[2].Syncing)
	assert.Zero(t, states[2].Pending)
}

type fakeCatalogue struct {
	defs []equipment.Definition
	err  error
}

func (c fakeCatalogue) EquipmentCodes(context.Context) ([]equipment.Definition, error) {
	return c.defs, c.err
}

func TestRefreshCatalogue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	defs := []equipment.Definition{
		{Code: "PU", Name: "Pump", Category: equipment.CategoryPump},
		{Code: "VI", Name: "Fan", Category: equipment.CategoryFan},
	}

	got, err := f.mgr.RefreshCatalogue(ctx, fakeCatalogue{defs: defs})
	require.NoError(t, err)
	assert.Equal(t, defs, got)

	got, err = f.mgr.RefreshCatalogue(ctx, fakeCatalogue{err: errOffline})
	require.ErrorIs(t, err, errOffline)
	assert.ElementsMatch(t, defs, got)
}
