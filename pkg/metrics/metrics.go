// Package metrics exposes Prometheus instrumentation for the gateway client.
//
// All methods are safe to call on a nil *Metrics, so instrumentation can be
// left unconfigured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gwlink"

// Request outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeError        = "error"
	OutcomeTimeout      = "timeout"
	OutcomeCancelled    = "cancelled"
	OutcomeFlushed      = "flushed"
	OutcomeNotConnected = "not_connected"
)

// Metrics holds the client collectors.
type Metrics struct {
	state             prometheus.Gauge
	connectAttempts   prometheus.Counter
	reconnects        prometheus.Counter
	handshakeFailures prometheus.Counter
	staleClosures     prometheus.Counter
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	pending           prometheus.Gauge
	framesDropped     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "state",
			Help:      "Current connection state (0=disconnected .. 5=ready, 6=stopped).",
		}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connect_attempts_total",
			Help:      "Transport connection attempts.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnects scheduled after a connection ended.",
		}),
		handshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "handshake_failures_total",
			Help:      "Connect negotiations rejected or failed.",
		}),
		staleClosures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "stale_closures_total",
			Help:      "Connections closed because ticks stopped arriving.",
		}),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Completed requests by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Request duration from send to terminal response.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
			},
			[]string{"method"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pending_requests",
			Help:      "Requests awaiting a terminal response.",
		}),
		framesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "frames_dropped_total",
				Help:      "Inbound frames dropped by reason.",
			},
			[]string{"reason"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.state, m.connectAttempts, m.reconnects, m.handshakeFailures,
			m.staleClosures, m.requests, m.requestDuration, m.pending, m.framesDropped,
		)
	}
	return m
}

// SetState records the numeric connection state.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

// ConnectAttempt counts a dial.
func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

// ReconnectScheduled counts a scheduled reconnect.
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// HandshakeFailed counts a failed connect negotiation.
func (m *Metrics) HandshakeFailed() {
	if m == nil {
		return
	}
	m.handshakeFailures.Inc()
}

// StaleClosure counts a heartbeat-forced closure.
func (m *Metrics) StaleClosure() {
	if m == nil {
		return
	}
	m.staleClosures.Inc()
}

// ObserveRequest records a completed request.
func (m *Metrics) ObserveRequest(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeError {
		m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

// RequestRejected counts a request refused before it reached the transport.
func (m *Metrics) RequestRejected(method string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, OutcomeNotConnected).Inc()
}

// SetPending records the number of in-flight requests.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// FrameDropped counts an inbound frame that was not delivered.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}
