package gwlink_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwlink/gwlink-go/internal/gatewaytest"
	"github.com/gwlink/gwlink-go/pkg/agent"
	"github.com/gwlink/gwlink-go/pkg/connection"
	"github.com/gwlink/gwlink-go/pkg/gateway"
	"github.com/gwlink/gwlink-go/pkg/handshake"
	plog "github.com/gwlink/gwlink-go/pkg/log"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

const e2eWait = 5 * time.Second

func newE2EClient(t *testing.T, srv *gatewaytest.Server, mutate ...func(*gateway.Config)) *gateway.Client {
	t.Helper()
	cfg := gateway.Config{
		URL:     srv.URL(),
		Backoff: connection.BackoffConfig{Initial: 20 * time.Millisecond, Max: 100 * time.Millisecond},
		Logger:  slog.New(slog.DiscardHandler),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := gateway.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Stop()
		select {
		case <-c.Done():
		case <-time.After(e2eWait):
			t.Error("client did not shut down")
		}
	})
	return c
}

func ensureReady(t *testing.T, c *gateway.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), e2eWait)
	defer cancel()
	require.NoError(t, c.EnsureReady(ctx))
}

// memoryLogger collects capture events.
type memoryLogger struct {
	mu     sync.Mutex
	events []plog.Event
}

func (m *memoryLogger) Log(e plog.Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *memoryLogger) snapshot() []plog.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]plog.Event(nil), m.events...)
}

// TestE2E_ChallengeHandshake connects over a real WebSocket and checks the
// connect params the gateway received.
func TestE2E_ChallengeHandshake(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{Token: "s3cret", TickInterval: time.Second})
	c := newE2EClient(t, srv, func(cfg *gateway.Config) {
		cfg.Handshake = handshake.Options{ClientID: "e2e", Token: "s3cret", Scopes: []string{"operator.read"}}
	})
	ensureReady(t, c)

	connects := srv.Connects()
	require.Len(t, connects, 1)
	params := connects[0]
	assert.Equal(t, 3, params.MinProtocol)
	assert.Equal(t, 3, params.MaxProtocol)
	assert.Equal(t, "e2e", params.Client.ID)
	require.NotNil(t, params.Auth)
	assert.Equal(t, "s3cret", params.Auth.Token)

	sess := c.Session()
	require.NotNil(t, sess)
	assert.Equal(t, time.Second, sess.TickInterval)
	assert.NotEmpty(t, sess.Nonce)
	assert.Equal(t, params.Client.InstanceID, sess.InstanceID)
}

// TestE2E_WrongTokenKeepsRetrying checks that a rejected connect closes the
// socket and the client keeps retrying without ever becoming ready.
func TestE2E_WrongTokenKeepsRetrying(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{Token: "right"})
	c := newE2EClient(t, srv, func(cfg *gateway.Config) {
		cfg.Handshake = handshake.Options{Token: "wrong"}
	})
	c.Start()

	require.Eventually(t, func() bool { return c.Stats().Attempts >= 2 },
		e2eWait, 10*time.Millisecond)
	assert.NotEqual(t, connection.StateReady, c.State())
	assert.ErrorIs(t, c.Stats().LastError, handshake.ErrHandshake)
	assert.Empty(t, srv.Connects())
}

// TestE2E_AgentRun exercises the two-phase agent flow end to end.
func TestE2E_AgentRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{
		Handlers: map[string]gatewaytest.Handler{
			agent.Method: func(_ context.Context, req *wire.RequestFrame, r *gatewaytest.Responder) {
				_ = r.Accept("run-42")
				_ = r.Event("agent", map[string]any{"runId": "run-42", "stream": "assistant"})
				time.Sleep(20 * time.Millisecond)
				_ = r.Reply(map[string]any{
					"runId":   "run-42",
					"status":  "ok",
					"summary": "completed",
					"result": map[string]any{"payloads": []map[string]any{
						{"text": "first"},
						{"text": ""},
						{"text": "second", "mediaUrl": "https://example.test/a.png"},
					}},
				})
			},
		},
	})

	events := make(chan string, 8)
	c := newE2EClient(t, srv, func(cfg *gateway.Config) {
		cfg.OnEvent = func(ev *wire.EventFrame) { events <- ev.Event }
	})

	ctx, cancel := context.WithTimeout(context.Background(), e2eWait)
	defer cancel()
	reply, err := agent.Ask(ctx, c, agent.Request{Message: "hello", SessionKey: "main"})
	require.NoError(t, err)

	assert.Equal(t, "run-42", reply.RunID)
	assert.Equal(t, "first\n\nsecond", reply.Text())

	var forwarded []agent.Segment
	require.NoError(t, agent.Forward(ctx, reply, func(_ context.Context, s agent.Segment) error {
		forwarded = append(forwarded, s)
		return nil
	}))
	assert.Len(t, forwarded, 2)

	select {
	case name := <-events:
		assert.Equal(t, "agent", name)
	case <-time.After(e2eWait):
		t.Fatal("agent event not delivered")
	}
	assert.Zero(t, c.Pending())
}

// TestE2E_Reconnection drops the socket under an in-flight request and
// checks the request fails while the client reconnects on its own.
func TestE2E_Reconnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	block := make(chan struct{})
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{
		Handlers: map[string]gatewaytest.Handler{
			"slow": func(ctx context.Context, _ *wire.RequestFrame, _ *gatewaytest.Responder) {
				select {
				case <-block:
				case <-ctx.Done():
				}
			},
			"health": func(_ context.Context, _ *wire.RequestFrame, r *gatewaytest.Responder) {
				_ = r.Reply(map[string]any{"ok": true})
			},
		},
	})
	defer close(block)

	c := newE2EClient(t, srv)
	ensureReady(t, c)

	fut, err := c.Call("slow", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(srv.Methods()) == 1 }, e2eWait, 5*time.Millisecond)

	srv.Drop(websocket.StatusGoingAway, "restart")

	ctx, cancel := context.WithTimeout(context.Background(), e2eWait)
	defer cancel()
	_, err = fut.Wait(ctx)
	require.ErrorIs(t, err, gateway.ErrConnectionLost)

	srv.WaitConnects(t, 2)
	ensureReady(t, c)

	payload, err := c.Request(ctx, "health", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(payload))
}

// TestE2E_TickTimeout pauses gateway ticks and expects a stale closure
// followed by a fresh connection.
func TestE2E_TickTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{TickInterval: 100 * time.Millisecond})
	c := newE2EClient(t, srv)
	ensureReady(t, c)

	require.Eventually(t, func() bool { return c.Stats().Ticks >= 2 }, e2eWait, 10*time.Millisecond)

	srv.PauseTicks(true)
	require.Eventually(t, func() bool {
		var stale *gateway.StaleConnectionError
		return errors.As(c.Stats().LastError, &stale)
	}, e2eWait, 10*time.Millisecond)

	srv.PauseTicks(false)
	srv.WaitConnects(t, 2)
	ensureReady(t, c)
}

// TestE2E_ProtocolCapture checks that a full session is captured at every
// layer.
func TestE2E_ProtocolCapture(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{
		Handlers: map[string]gatewaytest.Handler{
			"health": func(_ context.Context, _ *wire.RequestFrame, r *gatewaytest.Responder) {
				_ = r.Reply(map[string]any{"ok": true})
			},
		},
	})
	capture := &memoryLogger{}
	c := newE2EClient(t, srv, func(cfg *gateway.Config) { cfg.ProtocolLogger = capture })
	ensureReady(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), e2eWait)
	defer cancel()
	_, err := c.Request(ctx, "health", nil)
	require.NoError(t, err)

	layers := map[plog.Layer]bool{}
	var methods []string
	for _, e := range capture.snapshot() {
		layers[e.Layer] = true
		if e.Message != nil && e.Message.Type == plog.MessageTypeRequest {
			methods = append(methods, e.Message.Name)
		}
	}
	assert.True(t, layers[plog.LayerTransport], "transport events")
	assert.True(t, layers[plog.LayerWire], "wire events")
	assert.True(t, layers[plog.LayerClient], "client events")
	assert.Equal(t, []string{wire.MethodConnect, "health"}, methods)
}
