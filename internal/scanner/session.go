package scanner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fieldscan/fieldscan/internal/classifier"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/logger"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

// Session is a live scan. At most one frame is recognized at a time and
// each frame's detections replace the previous ones. Results from a frame
// submitted before Stop are never applied.
type Session struct {
	pipeline *Pipeline
	rec      FrameRecorder
	agg      *classifier.Aggregator
	log      logger.Logger

	mu         sync.Mutex
	id         string
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	running    bool

	busy atomic.Bool
	wg   sync.WaitGroup

	listenerMu sync.Mutex
	listeners  map[uint64]func([]equipment.Match)
	nextID     uint64
}

// NewSession returns a stopped session. rec may be nil.
func NewSession(p *Pipeline, rec FrameRecorder) *Session {
	return &Session{
		pipeline:  p,
		rec:       rec,
		agg:       classifier.NewAggregator(),
		log:       p.log,
		listeners: make(map[uint64]func([]equipment.Match)),
	}
}

// Start begins a new scan with an empty detection set. Starting a running
// session restarts it.
func (s *Session) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	s.generation++
	s.id = uuid.NewString()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	id := s.id
	s.mu.Unlock()

	s.agg.Reset()
	s.log.Debug("scan session started", logger.String("session_id", id))
}

// Stop cancels in-flight recognition and waits for it to return
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.generation++
	s.cancel()
	id := s.id
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Debug("scan session stopped", logger.String("session_id", id))
}

// ID returns the current session id, empty before the first Start
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Running reports whether the session accepts frames
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SubmitFrame starts recognition of frame in the background. It returns
// false and drops the frame when the session is stopped or a previous
// frame is still being recognized.
func (s *Session) SubmitFrame(frame []byte) bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return false
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.record(metrics.FrameDropped)
		return false
	}
	gen, ctx := s.generation, s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go s.process(ctx, gen, frame)
	return true
}

func (s *Session) process(ctx context.Context, gen uint64, frame []byte) {
	defer s.wg.Done()
	defer s.busy.Store(false)

	textMatches, visionMatches, err := s.pipeline.recognize(ctx, frame)

	s.mu.Lock()
	stale := gen != s.generation || ctx.Err() != nil
	if stale || err != nil {
		s.mu.Unlock()
		if stale {
			s.record(metrics.FrameStale)
			return
		}
		s.record(metrics.FrameFailed)
		s.log.Debug("frame recognition failed", logger.Error(err))
		return
	}
	// applied under mu so Stop cannot interleave with a late result
	detections := s.agg.Replace(textMatches, visionMatches)
	s.mu.Unlock()

	s.record(metrics.FrameProcessed)
	s.notify(detections)
}

func (s *Session) record(result string) {
	if s.rec != nil {
		s.rec.RecordFrame(result)
	}
}

// Detections returns the detections of the last applied frame
func (s *Session) Detections() []equipment.Match {
	return s.agg.Current()
}

// OnDetections registers fn for every applied frame. fn runs on the
// recognition goroutine and must not block.
func (s *Session) OnDetections(fn func([]equipment.Match)) (cancel func()) {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Session) notify(detections []equipment.Match) {
	s.listenerMu.Lock()
	fns := make([]func([]equipment.Match), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(detections)
	}
}
