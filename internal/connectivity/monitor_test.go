package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"finanzas/internal/offline"
)

type countingDrainer struct {
	calls atomic.Int32
}

func (d *countingDrainer) Drain(context.Context) offline.DrainResult {
	d.calls.Add(1)
	return offline.DrainResult{}
}

func TestNotifyTransitions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		offline   bool
		events    []Event
		wantDrain int32
		online    bool
	}{
		{"reconnect drains", true, []Event{EventOnline}, 1, true},
		{"duplicate online drains once", true, []Event{EventOnline, EventOnline}, 1, true},
		{"already online does not drain", false, []Event{EventOnline}, 0, true},
		{"visible again while online drains", false, []Event{EventHidden, EventVisible}, 1, true},
		{"visible while offline does not drain", true, []Event{EventHidden, EventVisible}, 0, false},
		{"visible without hidden does not drain", false, []Event{EventVisible}, 0, true},
		{"offline then online drains", false, []Event{EventOffline, EventOnline}, 1, true},
		{"going offline", false, []Event{EventOffline}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &countingDrainer{}
			m := New(Options{StartOffline: tt.offline})
			m.SetDrainer(d)
			for _, ev := range tt.events {
				m.Notify(ctx, ev)
			}
			m.WaitDrains()
			if got := d.calls.Load(); got != tt.wantDrain {
				t.Fatalf("expected %d drains, got %d", tt.wantDrain, got)
			}
			if m.Online() != tt.online {
				t.Fatalf("expected online=%v", tt.online)
			}
		})
	}
}

func TestNotifyWithoutDrainer(t *testing.T) {
	m := New(Options{StartOffline: true})
	if m.Notify(context.Background(), EventOnline) {
		t.Fatal("no drain can start without a drainer")
	}
	if !m.Online() {
		t.Fatal("state must still change")
	}
}

func TestDrainSurvivesCanceledContext(t *testing.T) {
	var gotErr error
	var mu sync.Mutex
	d := drainerFunc(func(ctx context.Context) offline.DrainResult {
		mu.Lock()
		gotErr = ctx.Err()
		mu.Unlock()
		return offline.DrainResult{}
	})
	m := New(Options{StartOffline: true})
	m.SetDrainer(d)

	ctx, cancel := context.WithCancel(context.Background())
	m.Notify(ctx, EventOnline)
	cancel()
	m.WaitDrains()

	mu.Lock()
	defer mu.Unlock()
	if gotErr != nil {
		t.Fatalf("background drain must not inherit cancellation, got %v", gotErr)
	}
}

type drainerFunc func(ctx context.Context) offline.DrainResult

func (f drainerFunc) Drain(ctx context.Context) offline.DrainResult { return f(ctx) }

type flakyPinger struct {
	fail atomic.Bool
}

func (p *flakyPinger) Ping(context.Context) error {
	if p.fail.Load() {
		return errors.New("unreachable")
	}
	return nil
}

func TestProbeLoopDrivesState(t *testing.T) {
	ctx := context.Background()
	p := &flakyPinger{}
	p.fail.Store(true)
	d := &countingDrainer{}
	m := New(Options{Pinger: p, ProbeInterval: 5 * time.Millisecond})
	m.SetDrainer(d)

	if err := m.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}

	waitFor(t, func() bool { return !m.Online() })
	p.fail.Store(false)
	waitFor(t, func() bool { return m.Online() })

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if d.calls.Load() != 1 {
		t.Fatalf("expected exactly one reconnect drain, got %d", d.calls.Load())
	}
}

// stuckPinger blocks until released, ignoring its context.
type stuckPinger struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *stuckPinger) Ping(context.Context) error {
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return nil
}

func TestStopAfterTimeoutCanBeRepeated(t *testing.T) {
	p := &stuckPinger{entered: make(chan struct{}), release: make(chan struct{})}
	m := New(Options{Pinger: p, ProbeInterval: time.Hour})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-p.entered

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Stop(expired); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the first Stop to time out, got %v", err)
	}

	close(p.release)
	stopCtx, cancelStop := context.WithTimeout(context.Background(), time.Second)
	defer cancelStop()
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	if err := m.Stop(stopCtx); err != nil {
		t.Fatalf("final Stop: %v", err)
	}
}

func TestStartWithoutPingerIsNoop(t *testing.T) {
	m := New(Options{})
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestParseEvent(t *testing.T) {
	if ev, err := ParseEvent("online"); err != nil || ev != EventOnline {
		t.Fatalf("unexpected %v %v", ev, err)
	}
	if _, err := ParseEvent("sleep"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
