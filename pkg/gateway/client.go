package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gwlink/gwlink-go/pkg/connection"
	"github.com/gwlink/gwlink-go/pkg/handshake"
	"github.com/gwlink/gwlink-go/pkg/log"
	"github.com/gwlink/gwlink-go/pkg/metrics"
	"github.com/gwlink/gwlink-go/pkg/pending"
	"github.com/gwlink/gwlink-go/pkg/transport"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// attempt is one connection attempt. It is never revived after closure.
type attempt struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	// Guarded by Client.mu.
	conn             transport.Conn
	registry         *pending.Registry
	challengeTimer   *time.Timer
	handshakeStarted bool
	nonce            string
	monitor          *transport.TickMonitor
	closed           bool
}

// Client is a persistent gateway connection. It is safe for concurrent use.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	capture log.Logger
	metrics *metrics.Metrics
	coord   *handshake.Coordinator
	backoff *connection.Backoff

	wg   sync.WaitGroup
	done chan struct{}

	mu        sync.Mutex
	state     connection.State
	started   bool
	att       *attempt
	ready     *ReadySignal
	session   *handshake.Session
	reconnect *time.Timer
	onEvent   func(*wire.EventFrame)
	lastDelay time.Duration
	lastErr   error
}

// Stats is a snapshot of the client.
type Stats struct {
	State connection.State

	// ConnID identifies the current attempt, if any.
	ConnID string

	// Attempts is the backoff counter. It resets after a handshake.
	Attempts int

	// LastDelay is the most recently scheduled reconnect delay.
	LastDelay time.Duration

	// LastError is the cause of the most recent closure.
	LastError error

	Pending int
	Ticks   uint64
}

// New creates a client. It does not connect until Start or EnsureReady.
func New(cfg Config) (*Client, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		capture: log.OrNoop(cfg.ProtocolLogger),
		metrics: cfg.Metrics,
		coord:   handshake.New(cfg.Handshake),
		backoff: connection.NewBackoffWithConfig(cfg.Backoff),
		done:    make(chan struct{}),
		state:   connection.StateDisconnected,
		ready:   newReadySignal(),
		onEvent: cfg.OnEvent,
	}
	c.metrics.SetState(int(c.state))
	return c, nil
}

// Start begins connecting and returns the readiness signal. It is
// idempotent; after Stop it returns a signal rejected with ErrClientStopped.
func (c *Client) Start() *ReadySignal {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == connection.StateStopped {
		return rejectedSignal(ErrClientStopped)
	}
	if !c.started {
		c.started = true
		c.connectLocked()
	}
	return c.ready
}

// EnsureReady returns once the client is Ready, starting it if needed.
func (c *Client) EnsureReady(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case connection.StateReady:
		c.mu.Unlock()
		return nil
	case connection.StateStopped:
		c.mu.Unlock()
		return ErrClientStopped
	}
	if !c.started {
		c.started = true
		c.connectLocked()
	}
	ready := c.ready
	c.mu.Unlock()

	return ready.Wait(ctx)
}

// Call sends a request on the current connection and returns its future.
// It fails with ErrNotConnected unless the client is Ready; requests are
// never queued across a disconnect.
func (c *Client) Call(method string, params any, opts ...CallOption) (*pending.Future, error) {
	so := pending.SendOptions{Timeout: c.cfg.RequestTimeout}
	for _, opt := range opts {
		opt(&so)
	}

	c.mu.Lock()
	if c.state != connection.StateReady {
		state := c.state
		c.mu.Unlock()
		c.metrics.RequestRejected(method)
		if state == connection.StateStopped {
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, ErrClientStopped)
		}
		return nil, ErrNotConnected
	}
	att := c.att
	c.mu.Unlock()

	fut, err := att.registry.Send(c.sender(att), method, params, so)
	if err != nil {
		if errors.Is(err, pending.ErrRegistryClosed) {
			c.metrics.RequestRejected(method)
			return nil, fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		return nil, err
	}
	c.metrics.SetPending(att.registry.Len())
	return fut, nil
}

// Request is Call followed by Wait.
func (c *Client) Request(ctx context.Context, method string, params any, opts ...CallOption) (json.RawMessage, error) {
	fut, err := c.Call(method, params, opts...)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Stop closes the connection, fails pending requests with ErrClientStopped
// and cancels any scheduled reconnect. The client cannot be restarted.
// Stop does not block; use Done to wait for background work to finish.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == connection.StateStopped {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(connection.StateStopped, "stopped")
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if att := c.att; att != nil {
		c.closeAttemptLocked(att, transport.CloseNormal, "client stopped", ErrClientStopped)
	}
	c.session = nil
	if !c.ready.resolve(ErrClientStopped) {
		c.ready = rejectedSignal(ErrClientStopped)
	}
	c.mu.Unlock()

	c.logger.Info("gateway client stopped")
	go func() {
		c.wg.Wait()
		close(c.done)
	}()
}

// Done is closed after Stop once every background goroutine has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// OnEvent replaces the event handler.
func (c *Client) OnEvent(h func(*wire.EventFrame)) {
	c.mu.Lock()
	c.onEvent = h
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the negotiated session, or nil unless Ready.
func (c *Client) Session() *handshake.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Pending returns the number of in-flight requests on the current attempt.
func (c *Client) Pending() int {
	c.mu.Lock()
	att := c.att
	c.mu.Unlock()
	if att == nil {
		return 0
	}
	return att.registry.Len()
}

// Stats returns a snapshot of the client.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		State:     c.state,
		Attempts:  c.backoff.Attempts(),
		LastDelay: c.lastDelay,
		LastError: c.lastErr,
	}
	if att := c.att; att != nil {
		s.ConnID = att.id
		s.Pending = att.registry.Len()
		if att.monitor != nil {
			s.Ticks = att.monitor.Stats().Ticks
		}
	}
	return s
}

// connectLocked creates a new attempt and dials it. c.mu must be held.
func (c *Client) connectLocked() {
	if c.ready.Resolved() {
		c.ready = newReadySignal()
	}

	att := &attempt{id: c.cfg.NewConnID()}
	att.ctx, att.cancel = context.WithCancel(context.Background())
	att.registry = pending.NewRegistry(pending.Options{
		Now: c.cfg.Now,
		OnComplete: func(cpl pending.Completion) {
			c.metrics.ObserveRequest(cpl.Method, outcome(cpl.Err), cpl.Duration)
			c.metrics.SetPending(att.registry.Len())
		},
	})
	c.att = att
	c.metrics.ConnectAttempt()
	c.setStateLocked(connection.StateConnecting, "dial "+c.cfg.URL)

	c.wg.Add(1)
	go c.dial(att)
}

func (c *Client) dial(att *attempt) {
	defer c.wg.Done()

	conn, err := c.cfg.Dialer.Dial(att.ctx, c.cfg.URL)

	c.mu.Lock()
	if c.att != att || att.closed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(transport.CloseNormal, "client stopped")
		}
		return
	}
	if err != nil {
		c.logger.Warn("dial failed", "url", c.cfg.URL, "error", err)
		c.capture.Log(log.NewErrorEvent(att.id, log.LayerTransport, err, "", "dial"))
		c.closeAttemptLocked(att, transport.CloseNormal, "", &TransportError{Op: "dial", Err: err})
		c.mu.Unlock()
		return
	}

	att.conn = transport.WithCapture(conn, c.cfg.ProtocolLogger, att.id)
	c.setStateLocked(connection.StateOpen, "transport open")
	att.challengeTimer = time.AfterFunc(c.cfg.ChallengeTimeout, func() {
		c.onChallengeTimeout(att)
	})
	c.setStateLocked(connection.StateAwaitingChallenge, "")
	c.wg.Add(1)
	go c.readLoop(att)
	c.mu.Unlock()
}

func (c *Client) readLoop(att *attempt) {
	defer c.wg.Done()

	for {
		data, err := att.conn.Receive(att.ctx)
		if err != nil {
			c.mu.Lock()
			if c.att == att && !att.closed {
				c.logger.Info("transport closed", "conn", att.id, "error", err)
				c.closeAttemptLocked(att, transport.CloseNormal, "", &TransportError{Op: "read", Err: err})
			}
			c.mu.Unlock()
			return
		}
		c.dispatch(att, data)
	}
}

func (c *Client) onChallengeTimeout(att *attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.att != att || att.closed {
		return
	}
	c.logger.Debug("no challenge received, sending connect", "conn", att.id)
	c.beginHandshakeLocked(att, "challenge timeout")
}

// beginHandshakeLocked starts the handshake at most once per attempt.
func (c *Client) beginHandshakeLocked(att *attempt, trigger string) {
	if att.handshakeStarted || att.closed || c.att != att {
		return
	}
	att.handshakeStarted = true
	if att.challengeTimer != nil {
		att.challengeTimer.Stop()
	}
	c.setStateLocked(connection.StateHandshaking, trigger)
	c.capture.Log(log.NewStateEvent(att.id, log.StateEntityHandshake, "", "started", trigger))

	c.wg.Add(1)
	go c.runHandshake(att, att.nonce)
}

func (c *Client) runHandshake(att *attempt, nonce string) {
	defer c.wg.Done()

	req := handshake.RequesterFunc(func(method string, params any, opts pending.SendOptions) (*pending.Future, error) {
		return att.registry.Send(c.sender(att), method, params, opts)
	})
	session, err := c.coord.Run(att.ctx, req, nonce)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.att != att || att.closed {
		return
	}
	if err != nil {
		c.metrics.HandshakeFailed()
		c.logger.Warn("handshake failed", "conn", att.id, "error", err)
		c.capture.Log(log.NewErrorEvent(att.id, log.LayerClient, err, "", "handshake"))
		c.closeAttemptLocked(att, transport.ClosePolicyViolation, "connect failed", err)
		return
	}

	c.session = session
	c.backoff.Reset()
	att.monitor = transport.NewTickMonitor(transport.TickMonitorConfig{
		Interval: session.TickInterval,
		Now:      c.cfg.Now,
		OnStale: func(elapsed, interval time.Duration) {
			c.onStale(att, elapsed, interval)
		},
	})
	att.monitor.Start(att.ctx)

	c.capture.Log(log.NewStateEvent(att.id, log.StateEntityHandshake, "started", "complete", ""))
	c.setStateLocked(connection.StateReady, "handshake complete")
	c.logger.Info("gateway ready",
		"conn", att.id,
		"protocol", session.Protocol,
		"tickInterval", session.TickInterval)
	c.ready.resolve(nil)
}

func (c *Client) onStale(att *attempt, elapsed, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.att != att || att.closed {
		return
	}
	err := &StaleConnectionError{Elapsed: elapsed, Interval: interval}
	c.metrics.StaleClosure()
	c.logger.Warn("tick timeout", "conn", att.id, "elapsed", elapsed, "interval", interval)
	c.capture.Log(log.NewStateEvent(att.id, log.StateEntityHeartbeat, "alive", "stale", err.Error()))
	c.closeAttemptLocked(att, transport.CloseTickTimeout, "tick timeout", err)
}

// closeAttemptLocked tears down att: timers and monitor stop, its requests
// fail with cause and the transport closes in the background. Unless the
// client is stopped, a reconnect is scheduled. c.mu must be held.
func (c *Client) closeAttemptLocked(att *attempt, code transport.CloseCode, reason string, cause error) {
	if att.closed {
		return
	}
	att.closed = true
	if att.challengeTimer != nil {
		att.challengeTimer.Stop()
	}
	if att.monitor != nil {
		att.monitor.Stop()
	}
	if n := att.registry.Close(cause); n > 0 {
		c.logger.Debug("failed pending requests", "conn", att.id, "count", n)
	}

	if c.state != connection.StateStopped {
		c.session = nil
		c.lastErr = cause
		c.setStateLocked(connection.StateDisconnected, cause.Error())
		c.scheduleReconnectLocked()
		if c.ready.Resolved() {
			c.ready = newReadySignal()
		}
	}

	conn := att.conn
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// The attempt context is cancelled only after Close returns so a
		// graceful close can still complete.
		if conn != nil {
			if err := conn.Close(code, reason); err != nil {
				c.logger.Debug("close transport", "conn", att.id, "error", err)
			}
		}
		att.cancel()
	}()
}

func (c *Client) scheduleReconnectLocked() {
	delay := c.backoff.Next()
	c.lastDelay = delay
	c.metrics.ReconnectScheduled()
	c.logger.Info("reconnect scheduled", "delay", delay, "attempt", c.backoff.Attempts())

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.reconnect != t || c.state != connection.StateDisconnected {
			return
		}
		c.reconnect = nil
		c.connectLocked()
	})
	c.reconnect = t
}

// sender returns the frame sender bound to att's transport.
func (c *Client) sender(att *attempt) pending.Sender {
	return pending.SenderFunc(func(f wire.Frame) error {
		data, err := wire.Encode(f)
		if err != nil {
			return err
		}
		if err := att.conn.Send(att.ctx, data); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
		c.capture.Log(log.NewMessageEvent(att.id, log.DirectionOut, f))
		return nil
	})
}

// setStateLocked records a state change. c.mu must be held.
func (c *Client) setStateLocked(next connection.State, reason string) {
	prev := c.state
	if prev == next {
		return
	}
	if !prev.CanTransition(next) {
		c.logger.Warn("unexpected state transition", "from", prev, "to", next)
	}
	c.state = next
	c.metrics.SetState(int(next))

	connID := ""
	if c.att != nil {
		connID = c.att.id
	}
	c.logger.Debug("state change", "conn", connID, "from", prev, "to", next, "reason", reason)
	c.capture.Log(log.NewStateEvent(connID, log.StateEntityConnection, prev.String(), next.String(), reason))
}

// outcome classifies a completed request for metrics.
func outcome(err error) string {
	var reqErr *pending.RequestError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &reqErr):
		return metrics.OutcomeError
	case errors.Is(err, pending.ErrRequestTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeFlushed
	}
}
