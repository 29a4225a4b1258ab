package transport

import (
	"context"
	"sync"
	"time"
)

// Tick monitor constants.
const (
	// DefaultTickInterval is used when the gateway does not negotiate one.
	DefaultTickInterval = 30 * time.Second

	// MinCheckInterval is the floor for the liveness check period.
	MinCheckInterval = time.Second

	// StaleFactor is how many intervals may pass without a tick.
	StaleFactor = 2
)

// StaleFunc is called once when the tick gap exceeds the limit.
type StaleFunc func(elapsed, interval time.Duration)

// TickMonitorConfig configures a TickMonitor.
type TickMonitorConfig struct {
	// Interval is the negotiated tick interval (default: 30s).
	Interval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OnStale is called once when the connection is considered stale.
	OnStale StaleFunc
}

// TickMonitor tracks gateway tick events and reports a stale connection when
// more than StaleFactor intervals pass without one.
type TickMonitor struct {
	interval time.Duration
	now      func() time.Time
	onStale  StaleFunc

	mu       sync.Mutex
	lastSeen time.Time
	ticks    uint64
	fired    bool
	running  bool
	stopCh   chan struct{}
}

// NewTickMonitor creates a monitor. It does nothing until Start.
func NewTickMonitor(config TickMonitorConfig) *TickMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultTickInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &TickMonitor{
		interval: config.Interval,
		now:      config.Now,
		onStale:  config.OnStale,
		stopCh:   make(chan struct{}),
	}
}

// Interval returns the negotiated tick interval.
func (m *TickMonitor) Interval() time.Duration { return m.interval }

// CheckInterval returns the period of the liveness check.
func (m *TickMonitor) CheckInterval() time.Duration {
	return max(m.interval, MinCheckInterval)
}

// Limit returns the longest tolerated gap between ticks.
func (m *TickMonitor) Limit() time.Duration {
	return StaleFactor * m.interval
}

// Start records the current time as the last tick and begins periodic
// checks. Calling Start on a running monitor is a no-op.
func (m *TickMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.fired = false
	m.lastSeen = m.now()
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.loop(ctx, stopCh)
}

// Stop ends periodic checks. The stale callback is not invoked afterwards.
func (m *TickMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

// Touch records a tick arrival.
func (m *TickMonitor) Touch() {
	m.mu.Lock()
	m.lastSeen = m.now()
	m.ticks++
	m.mu.Unlock()
}

// Check evaluates liveness now. It returns true and invokes the stale
// callback (at most once per Start) when the gap exceeds the limit.
func (m *TickMonitor) Check() bool {
	m.mu.Lock()
	if !m.running || m.fired {
		m.mu.Unlock()
		return false
	}
	elapsed := m.now().Sub(m.lastSeen)
	if elapsed <= m.Limit() {
		m.mu.Unlock()
		return false
	}
	m.fired = true
	onStale := m.onStale
	m.mu.Unlock()

	if onStale != nil {
		onStale(elapsed, m.interval)
	}
	return true
}

// IsRunning returns true if monitoring is active.
func (m *TickMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Stats returns current monitor statistics.
func (m *TickMonitor) Stats() TickStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TickStats{
		LastSeen: m.lastSeen,
		Ticks:    m.ticks,
		Interval: m.interval,
		Stale:    m.fired,
	}
}

// TickStats contains tick monitor statistics.
type TickStats struct {
	LastSeen time.Time
	Ticks    uint64
	Interval time.Duration
	Stale    bool
}

// loop runs Check every CheckInterval until stopped.
func (m *TickMonitor) loop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(m.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if m.Check() {
				return
			}
		}
	}
}
