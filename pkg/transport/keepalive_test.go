package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTickMonitorDefaults(t *testing.T) {
	m := NewTickMonitor(TickMonitorConfig{})
	if m.Interval() != DefaultTickInterval {
		t.Errorf("Interval = %v, want %v", m.Interval(), DefaultTickInterval)
	}
	if m.Limit() != 60*time.Second {
		t.Errorf("Limit = %v, want 60s", m.Limit())
	}
}

func TestTickMonitorCheckIntervalFloor(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     time.Duration
	}{
		{10 * time.Millisecond, time.Second},
		{time.Second, time.Second},
		{5 * time.Second, 5 * time.Second},
	}

	for _, tt := range tests {
		m := NewTickMonitor(TickMonitorConfig{Interval: tt.interval})
		if got := m.CheckInterval(); got != tt.want {
			t.Errorf("CheckInterval(%v) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestTickMonitorStaysAliveWithRegularTicks(t *testing.T) {
	clock := newFakeClock()
	var staleCalls atomic.Int32

	m := NewTickMonitor(TickMonitorConfig{
		Interval: 5 * time.Second,
		Now:      clock.Now,
		OnStale:  func(time.Duration, time.Duration) { staleCalls.Add(1) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	// Ticks every 4s for 60s, checked every second.
	for elapsed := time.Second; elapsed <= 60*time.Second; elapsed += time.Second {
		clock.Advance(time.Second)
		if elapsed%(4*time.Second) == 0 {
			m.Touch()
		}
		if m.Check() {
			t.Fatalf("reported stale at %v", elapsed)
		}
	}

	if staleCalls.Load() != 0 {
		t.Errorf("OnStale called %d times", staleCalls.Load())
	}
	if got := m.Stats().Ticks; got != 15 {
		t.Errorf("Ticks = %d, want 15", got)
	}
}

func TestTickMonitorDetectsGap(t *testing.T) {
	clock := newFakeClock()
	var gotElapsed, gotInterval time.Duration
	var calls int

	m := NewTickMonitor(TickMonitorConfig{
		Interval: 10 * time.Second,
		Now:      clock.Now,
		OnStale: func(elapsed, interval time.Duration) {
			calls++
			gotElapsed, gotInterval = elapsed, interval
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	clock.Advance(20 * time.Second)
	if m.Check() {
		t.Fatal("exactly twice the interval must not be stale")
	}

	clock.Advance(5 * time.Second)
	if !m.Check() {
		t.Fatal("25s gap with 10s interval should be stale")
	}
	if gotElapsed != 25*time.Second || gotInterval != 10*time.Second {
		t.Errorf("OnStale(%v, %v), want (25s, 10s)", gotElapsed, gotInterval)
	}

	// Fires only once.
	clock.Advance(time.Minute)
	if m.Check() {
		t.Error("second Check should not fire again")
	}
	if calls != 1 {
		t.Errorf("OnStale called %d times, want 1", calls)
	}
	if !m.Stats().Stale {
		t.Error("Stats().Stale = false")
	}
}

func TestTickMonitorTouchResetsGap(t *testing.T) {
	clock := newFakeClock()
	m := NewTickMonitor(TickMonitorConfig{Interval: 10 * time.Second, Now: clock.Now})
	m.Start(context.Background())
	defer m.Stop()

	clock.Advance(19 * time.Second)
	m.Touch()
	clock.Advance(19 * time.Second)
	if m.Check() {
		t.Error("tick at 19s should keep connection alive at 38s")
	}
}

func TestTickMonitorNotRunning(t *testing.T) {
	clock := newFakeClock()
	called := false
	m := NewTickMonitor(TickMonitorConfig{
		Interval: time.Second,
		Now:      clock.Now,
		OnStale:  func(time.Duration, time.Duration) { called = true },
	})

	clock.Advance(time.Hour)
	if m.Check() {
		t.Error("Check before Start should not fire")
	}

	m.Start(context.Background())
	m.Stop()
	clock.Advance(time.Hour)
	if m.Check() || called {
		t.Error("Check after Stop should not fire")
	}
	if m.IsRunning() {
		t.Error("IsRunning after Stop")
	}
	// Idempotent.
	m.Stop()
}

func TestTickMonitorLoopFires(t *testing.T) {
	fired := make(chan time.Duration, 1)
	m := NewTickMonitor(TickMonitorConfig{
		Interval: 100 * time.Millisecond,
		OnStale:  func(elapsed, _ time.Duration) { fired <- elapsed },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	// First check runs after the 1s floor; no ticks arrive.
	select {
	case elapsed := <-fired:
		if elapsed <= 200*time.Millisecond {
			t.Errorf("elapsed = %v, want > 200ms", elapsed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not fire")
	}
}

func TestTickMonitorRestart(t *testing.T) {
	clock := newFakeClock()
	m := NewTickMonitor(TickMonitorConfig{Interval: time.Second, Now: clock.Now})

	m.Start(context.Background())
	clock.Advance(3 * time.Second)
	if !m.Check() {
		t.Fatal("expected stale")
	}
	m.Stop()

	m.Start(context.Background())
	defer m.Stop()
	if m.Check() {
		t.Error("restart should reset last seen")
	}
}
