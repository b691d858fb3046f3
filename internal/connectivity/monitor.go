// Package connectivity tracks whether the backend is reachable and over
// which kind of link, and triggers a queue drain when it comes back.
package connectivity

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"

	"github.com/fieldscan/fieldscan/internal/logger"
)

// GetLogger returns the module logger for connectivity
func GetLogger() logger.Logger {
	return logger.Global().Module("connectivity")
}

// Transport is the kind of link the device is using
type Transport string

const (
	TransportNone     Transport = "none"
	TransportWired    Transport = "wired"
	TransportWiFi     Transport = "wifi"
	TransportCellular Transport = "cellular"
	TransportUnknown  Transport = "unknown"
)

// Default configuration values
const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Status is a connectivity snapshot
type Status struct {
	Reachable bool
	Transport Transport
	Since     time.Time
}

// Prober checks the backend. A nil error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// InterfaceLister lists network interfaces
type InterfaceLister func(ctx context.Context) ([]net.InterfaceStat, error)

func defaultInterfaces(ctx context.Context) ([]net.InterfaceStat, error) {
	return net.InterfacesWithContext(ctx)
}

// Config holds the probe schedule
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Option customizes a Monitor
type Option func(*Monitor)

// WithReconnectHook sets fn to run after every unreachable to reachable
// transition. It runs on its own goroutine; Stop waits for it.
func WithReconnectHook(fn func(ctx context.Context)) Option {
	return func(m *Monitor) { m.onReconnect = fn }
}

// WithInterfaceLister replaces the gopsutil interface listing
func WithInterfaceLister(fn InterfaceLister) Option {
	return func(m *Monitor) { m.interfaces = fn }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor probes the backend on an interval. It starts out unreachable.
type Monitor struct {
	prober      Prober
	interval    time.Duration
	timeout     time.Duration
	interfaces  InterfaceLister
	onReconnect func(ctx context.Context)
	now         func() time.Time
	log         logger.Logger

	mu        sync.RWMutex
	status    Status
	listeners map[uint64]func(Status)
	nextID    uint64

	checkMu sync.Mutex
	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewMonitor creates a monitor; call Start to begin probing
func NewMonitor(prober Prober, cfg Config, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		prober:     prober,
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
		interfaces: defaultInterfaces,
		now:        time.Now,
		listeners:  make(map[uint64]func(Status)),
		trigger:    make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = GetLogger()
	}
	m.status = Status{Transport: TransportUnknown, Since: m.now()}
	return m
}

// Start runs the probe loop until Stop is called
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.log.Info("starting connectivity monitor",
		logger.Duration("interval", m.interval),
		logger.Duration("timeout", m.timeout))

	m.wg.Add(1)
	go m.loop()
}

// Stop ends the probe loop and waits for running reconnect hooks
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	if started {
		m.log.Info("connectivity monitor stopped")
	}
}

// Run starts the monitor and blocks until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	m.Start()
	<-ctx.Done()
	m.Stop()
	return nil
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	m.Check(m.ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(m.ctx)
		case <-m.trigger:
			m.Check(m.ctx)
		case <-m.ctx.Done():
			return
		}
	}
}

// TriggerCheck asks the running loop for an immediate probe
func (m *Monitor) TriggerCheck() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Check probes once, updates the status and returns it
func (m *Monitor) Check(ctx context.Context) Status {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Probe(probeCtx)
	cancel()

	reachable := err == nil
	transport := m.transport(ctx)

	m.mu.Lock()
	prev := m.status
	changed := prev.Reachable != reachable || prev.Transport != transport
	if changed {
		since := prev.Since
		if prev.Reachable != reachable {
			since = m.now()
		}
		m.status = Status{Reachable: reachable, Transport: transport, Since: since}
	}
	current := m.status
	m.mu.Unlock()

	if !changed {
		return current
	}

	if err != nil && prev.Reachable {
		m.log.Warn("backend unreachable", logger.String("transport", string(transport)), logger.Error(err))
	} else if reachable && !prev.Reachable {
		m.log.Info("backend reachable", logger.String("transport", string(transport)))
	}
	m.notify(current)

	if reachable && !prev.Reachable && m.onReconnect != nil && m.ctx.Err() == nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.onReconnect(m.ctx)
		}()
	}
	return current
}

func (m *Monitor) transport(ctx context.Context) Transport {
	ifaces, err := m.interfaces(ctx)
	if err != nil {
		m.log.Debug("failed to list network interfaces", logger.Error(err))
		return TransportUnknown
	}
	return ClassifyTransport(ifaces)
}

// Status returns the latest snapshot
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsReachable reports whether the last probe succeeded
func (m *Monitor) IsReachable() bool {
	return m.Status().Reachable
}

// OnChange registers fn for status changes. fn must not block.
func (m *Monitor) OnChange(fn func(Status)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Monitor) notify(s Status) {
	m.mu.RLock()
	fns := make([]func(Status), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}

var transportPrefixes = []struct {
	prefix    string
	transport Transport
}{
	{"wlan", TransportWiFi},
	{"wlp", TransportWiFi},
	{"wl", TransportWiFi},
	{"wwan", TransportCellular},
	{"rmnet", TransportCellular},
	{"ccmni", TransportCellular},
	{"ppp", TransportCellular},
	{"eth", TransportWired},
	{"enp", TransportWired},
	{"en", TransportWired},
}

// ClassifyTransport picks the link type from the interfaces that are up
// and carry an address. Wired beats wifi beats cellular.
func ClassifyTransport(ifaces []net.InterfaceStat) Transport {
	rank := map[Transport]int{TransportWired: 3, TransportWiFi: 2, TransportCellular: 1, TransportUnknown: 0}
	best := TransportNone

	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") || len(iface.Addrs) == 0 {
			continue
		}
		t := TransportUnknown
		name := strings.ToLower(iface.Name)
		for _, p := range transportPrefixes {
			if strings.HasPrefix(name, p.prefix) {
				t = p.transport
				break
			}
		}
		if best == TransportNone || rank[t] > rank[best] {
			best = t
		}
	}
	return best
}
