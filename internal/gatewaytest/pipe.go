package gatewaytest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gwlink/gwlink-go/pkg/transport"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// DefaultWait bounds every blocking helper in this package.
const DefaultWait = 3 * time.Second

// PipeDialer dials in-memory connections. The gateway side of every dial is
// delivered as a Peer through Accept.
type PipeDialer struct {
	peers chan *Peer

	mu       sync.Mutex
	dials    int
	failures []error
}

// NewPipeDialer creates a dialer.
func NewPipeDialer() *PipeDialer {
	return &PipeDialer{peers: make(chan *Peer, 16)}
}

// Dial implements transport.Dialer.
func (d *PipeDialer) Dial(ctx context.Context, _ string) (transport.Conn, error) {
	d.mu.Lock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.mu.Unlock()
		return nil, err
	}
	d.mu.Unlock()

	client, server := transport.Pipe()
	select {
	case d.peers <- &Peer{conn: server}:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FailNext makes the next len(errs) dials fail with errs in order.
func (d *PipeDialer) FailNext(errs ...error) {
	d.mu.Lock()
	d.failures = append(d.failures, errs...)
	d.mu.Unlock()
}

// Dials returns the number of Dial calls so far.
func (d *PipeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Accept returns the gateway side of the next successful dial.
func (d *PipeDialer) Accept(t testing.TB) *Peer {
	t.Helper()
	select {
	case p := <-d.peers:
		return p
	case <-time.After(DefaultWait):
		require.FailNow(t, "no dial within timeout")
		return nil
	}
}

// ExpectNoDial fails the test if a connection is dialled within d.
func (d *PipeDialer) ExpectNoDial(t testing.TB, within time.Duration) {
	t.Helper()
	select {
	case <-d.peers:
		require.FailNow(t, "unexpected dial")
	case <-time.After(within):
	}
}

// Peer is the gateway end of a pipe connection.
type Peer struct {
	conn transport.Conn
}

// Conn returns the underlying gateway-side connection.
func (p *Peer) Conn() transport.Conn { return p.conn }

// Send writes a frame to the client.
func (p *Peer) Send(t testing.TB, f wire.Frame) {
	t.Helper()
	data, err := wire.Encode(f)
	require.NoError(t, err)
	p.SendRaw(t, data)
}

// SendRaw writes raw text to the client.
func (p *Peer) SendRaw(t testing.TB, data []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultWait)
	defer cancel()
	require.NoError(t, p.conn.Send(ctx, data))
}

// Event sends an event with a JSON-encoded payload.
func (p *Peer) Event(t testing.TB, name string, payload any) {
	t.Helper()
	p.Send(t, &wire.EventFrame{Event: name, Payload: mustJSON(t, payload)})
}

// Challenge sends connect.challenge.
func (p *Peer) Challenge(t testing.TB, nonce string) {
	t.Helper()
	p.Event(t, wire.EventConnectChallenge, wire.ChallengePayload{Nonce: nonce, Ts: time.Now().UnixMilli()})
}

// Tick sends a tick event.
func (p *Peer) Tick(t testing.TB) {
	t.Helper()
	p.Event(t, wire.EventTick, wire.TickPayload{Ts: time.Now().UnixMilli()})
}

// Reply sends a successful response for id.
func (p *Peer) Reply(t testing.TB, id string, payload any) {
	t.Helper()
	p.Send(t, &wire.ResponseFrame{ID: id, OK: true, Payload: mustJSON(t, payload)})
}

// Fail sends a failed response for id.
func (p *Peer) Fail(t testing.TB, id, code, message string) {
	t.Helper()
	p.Send(t, &wire.ResponseFrame{ID: id, Error: &wire.ErrorShape{Code: code, Message: message}})
}

// Next returns the next frame from the client.
func (p *Peer) Next(within time.Duration) (wire.Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	data, err := p.conn.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return wire.Decode(data)
}

// Expect reads the next frame and requires it to be a request for method.
func (p *Peer) Expect(t testing.TB, method string) *wire.RequestFrame {
	t.Helper()
	f, err := p.Next(DefaultWait)
	require.NoError(t, err, "waiting for %s", method)
	req, ok := f.(*wire.RequestFrame)
	require.True(t, ok, "expected request, got %T", f)
	require.Equal(t, method, req.Method)
	return req
}

// ExpectNothing requires that no frame arrives within d.
func (p *Peer) ExpectNothing(t testing.TB, d time.Duration) {
	t.Helper()
	f, err := p.Next(d)
	if err == nil {
		require.FailNow(t, "unexpected frame", "%#v", f)
	}
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// Handshake answers the connect request with a hello advertising tick.
// A zero tick omits the policy.
func (p *Peer) Handshake(t testing.TB, tick time.Duration) *wire.RequestFrame {
	t.Helper()
	req := p.Expect(t, wire.MethodConnect)
	p.Reply(t, req.ID, Hello(tick))
	return req
}

// Close closes the connection from the gateway side.
func (p *Peer) Close(code transport.CloseCode, reason string) {
	_ = p.conn.Close(code, reason)
}

// WaitClosed waits for the connection to close and returns its status.
func (p *Peer) WaitClosed(t testing.TB) *transport.CloseError {
	t.Helper()
	deadline := time.Now().Add(DefaultWait)
	for time.Now().Before(deadline) {
		_, err := p.Next(time.Until(deadline))
		if err == nil {
			continue
		}
		var ce *transport.CloseError
		if errors.As(err, &ce) {
			return ce
		}
		if errors.Is(err, wire.ErrProtocol) {
			continue
		}
		require.FailNow(t, "connection not closed", "%v", err)
	}
	require.FailNow(t, "connection not closed within timeout")
	return nil
}

// Hello builds a hello payload for protocol 3.
func Hello(tick time.Duration) wire.HelloPayload {
	h := wire.HelloPayload{
		Type:     "hello-ok",
		Protocol: wire.ProtocolVersion,
		Server:   &wire.ServerInfo{Version: "test", Host: "gatewaytest"},
	}
	if tick > 0 {
		h.Policy = &wire.Policy{TickIntervalMs: tick.Milliseconds()}
	}
	return h
}

func mustJSON(t testing.TB, v any) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

var _ transport.Dialer = (*PipeDialer)(nil)
