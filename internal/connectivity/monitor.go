// Package connectivity tracks online and visibility transitions and triggers
// offline queue drains when the client comes back.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finanzas/internal/dataapi"
	"finanzas/internal/log"
	"finanzas/internal/offline"
)

const (
	EventOnline  Event = "online"
	EventOffline Event = "offline"
	EventVisible Event = "visible"
	EventHidden  Event = "hidden"
)

type Event string

// ParseEvent validates an event name received from the host.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventOnline, EventOffline, EventVisible, EventHidden:
		return e, nil
	}
	return "", fmt.Errorf("unknown connectivity event %q", s)
}

// Drainer is the offline queue as seen by the monitor.
type Drainer interface {
	Drain(ctx context.Context) offline.DrainResult
}

// Options configures a Monitor.
type Options struct {
	// StartOffline makes the monitor assume no connectivity until told otherwise.
	StartOffline bool
	// Pinger and ProbeInterval enable active probing in Start.
	Pinger        dataapi.Pinger
	ProbeInterval time.Duration
	Logger        *log.Logger
}

// Status is a snapshot of the monitor state.
type Status struct {
	Online      bool      `json:"online"`
	Visible     bool      `json:"visible"`
	LastChange  time.Time `json:"last_change"`
	DrainsFired int       `json:"drains_fired"`
}

// Monitor holds the online and visible flags. Transitions that should replay
// queued actions start a drain in the background.
type Monitor struct {
	mu          sync.Mutex
	online      bool
	visible     bool
	lastChange  time.Time
	drainsFired int
	drainer     Drainer

	pinger   dataapi.Pinger
	interval time.Duration
	logger   *log.Logger
	drains   sync.WaitGroup

	// Lifecycle management
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	interval := opts.ProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		online:     !opts.StartOffline,
		visible:    true,
		lastChange: time.Now(),
		pinger:     opts.Pinger,
		interval:   interval,
		logger:     logger.WithComponent(log.ComponentConnectivity),
	}
}

// SetDrainer wires the queue the monitor drains on reconnect.
func (m *Monitor) SetDrainer(d Drainer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainer = d
}

// Online implements offline.Connectivity.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Online: m.online, Visible: m.visible, LastChange: m.lastChange, DrainsFired: m.drainsFired}
}

// Notify applies an event and reports whether it started a drain. A drain
// starts on an offline to online transition and when the client becomes
// visible again while online. The drain outlives ctx cancellation.
func (m *Monitor) Notify(ctx context.Context, ev Event) bool {
	m.mu.Lock()
	trigger, changed := false, false
	switch ev {
	case EventOnline:
		if !m.online {
			m.online = true
			m.lastChange = time.Now()
			trigger, changed = true, true
		}
	case EventOffline:
		if m.online {
			m.online = false
			m.lastChange = time.Now()
			changed = true
		}
	case EventVisible:
		if !m.visible {
			m.visible = true
			trigger, changed = m.online, true
		}
	case EventHidden:
		changed = m.visible
		m.visible = false
	}
	drainer := m.drainer
	if trigger && drainer != nil {
		m.drainsFired++
	}
	m.mu.Unlock()

	if changed {
		m.logger.InfoContext(ctx, "Connectivity changed", log.FieldEvent, string(ev), "drain", trigger && drainer != nil)
	}
	if !trigger || drainer == nil {
		return false
	}

	bg := context.WithoutCancel(ctx)
	m.drains.Add(1)
	go func() {
		defer m.drains.Done()
		res := drainer.Drain(bg)
		if res.Skipped != "" {
			m.logger.DebugContext(bg, "Drain skipped", "reason", string(res.Skipped))
		}
	}()
	return true
}

// WaitDrains blocks until every background drain started so far has finished.
func (m *Monitor) WaitDrains() {
	m.drains.Wait()
}

// Start begins active probing of the data API. Without a pinger it is a no-op.
// Returns an error if already running.
func (m *Monitor) Start(ctx context.Context) error {
	if m.pinger == nil {
		return nil
	}
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("connectivity monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go m.runLoop(ctx, stopCh, doneCh)

	m.logger.InfoContext(ctx, "Connectivity monitor started", "probe_interval", m.interval)
	return nil
}

// Stop ends probing and waits for the loop and in-flight drains.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	running, stopCh, doneCh := m.running, m.stopCh, m.doneCh
	m.running = false
	m.mu.Unlock()

	if running {
		close(stopCh)
		select {
		case <-doneCh:
		case <-ctx.Done():
			m.logger.WarnContext(ctx, "Connectivity monitor stop timed out")
			return ctx.Err()
		}
	}

	drained := make(chan struct{})
	go func() {
		m.drains.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		m.logger.InfoContext(ctx, "Connectivity monitor stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe converts one ping result into an online or offline event.
func (m *Monitor) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	if err := m.pinger.Ping(pctx); err != nil {
		if m.Online() {
			m.logger.WarnContext(ctx, "Data API unreachable", log.FieldError, err)
		}
		m.Notify(ctx, EventOffline)
		return
	}
	m.Notify(ctx, EventOnline)
}
