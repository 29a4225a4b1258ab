package gatewaytest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gwlink/gwlink-go/pkg/wire"
)

// Handler serves one request. It runs on its own goroutine and may send any
// number of events and responses through r.
type Handler func(ctx context.Context, req *wire.RequestFrame, r *Responder)

// ServerOptions configure a fake gateway.
type ServerOptions struct {
	// NoChallenge suppresses connect.challenge after the socket opens.
	NoChallenge bool

	// TickInterval is advertised in hello and drives tick events.
	// Zero disables both.
	TickInterval time.Duration

	// Token, when set, must be presented in connect auth.
	Token string

	// Handlers serve methods other than connect.
	Handlers map[string]Handler
}

// Server is a WebSocket fake gateway.
type Server struct {
	srv  *httptest.Server
	opts ServerOptions

	ticksPaused atomic.Bool

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	connects []wire.ConnectParams
	methods  []string
}

// NewServer starts a fake gateway that is closed with the test.
func NewServer(t testing.TB, opts ServerOptions) *Server {
	t.Helper()
	s := &Server{opts: opts, conns: make(map[*websocket.Conn]struct{})}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close drops all connections and stops the server.
func (s *Server) Close() {
	s.Drop(websocket.StatusGoingAway, "server shutdown")
	s.srv.Close()
}

// Drop closes every live connection with code.
func (s *Server) Drop(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(code, reason)
	}
}

// PauseTicks stops or resumes tick events.
func (s *Server) PauseTicks(paused bool) { s.ticksPaused.Store(paused) }

// Connects returns the params of every accepted connect, in order.
func (s *Server) Connects() []wire.ConnectParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.ConnectParams(nil), s.connects...)
}

// Methods returns every non-connect method received, in order.
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

// WaitConnects blocks until at least n handshakes have been accepted.
func (s *Server) WaitConnects(t testing.TB, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.Connects()) >= n },
		DefaultWait, 10*time.Millisecond, "waiting for %d connects", n)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	resp := &Responder{ctx: ctx, conn: conn}
	if !s.opts.NoChallenge {
		if err := resp.Event(wire.EventConnectChallenge, wire.ChallengePayload{
			Nonce: uuid.New().String(),
			Ts:    time.Now().UnixMilli(),
		}); err != nil {
			return
		}
	}

	connected := false
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		frame, err := wire.Decode(data)
		if err != nil {
			continue
		}
		req, ok := frame.(*wire.RequestFrame)
		if !ok {
			continue
		}
		reqResp := &Responder{ctx: ctx, conn: conn, id: req.ID, mu: &resp.wmu}

		if req.Method == wire.MethodConnect {
			if connected {
				_ = reqResp.Fail("already_connected", "connect already completed")
				continue
			}
			if !s.accept(req, reqResp) {
				continue
			}
			connected = true
			if s.opts.TickInterval > 0 {
				go s.ticks(ctx, resp)
			}
			continue
		}

		if !connected {
			_ = reqResp.Fail("not_connected", "connect first")
			continue
		}
		s.mu.Lock()
		s.methods = append(s.methods, req.Method)
		s.mu.Unlock()

		h := s.opts.Handlers[req.Method]
		if h == nil {
			_ = reqResp.Fail("unknown_method", "unknown method: "+req.Method)
			continue
		}
		go h(ctx, req, reqResp)
	}
}

func (s *Server) accept(req *wire.RequestFrame, r *Responder) bool {
	var params wire.ConnectParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		_ = r.Fail("invalid_request", err.Error())
		return false
	}
	if s.opts.Token != "" && (params.Auth == nil || params.Auth.Token != s.opts.Token) {
		_ = r.Fail("unauthorized", "invalid token")
		return false
	}

	s.mu.Lock()
	s.connects = append(s.connects, params)
	s.mu.Unlock()
	return r.Reply(Hello(s.opts.TickInterval)) == nil
}

func (s *Server) ticks(ctx context.Context, r *Responder) {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ticksPaused.Load() {
				continue
			}
			if err := r.Event(wire.EventTick, wire.TickPayload{Ts: time.Now().UnixMilli()}); err != nil {
				return
			}
		}
	}
}

// Responder writes frames for one request on a server connection.
type Responder struct {
	ctx  context.Context
	conn *websocket.Conn
	id   string

	wmu sync.Mutex
	mu  *sync.Mutex
}

// ID returns the request id being answered.
func (r *Responder) ID() string { return r.id }

// Reply sends a successful response.
func (r *Responder) Reply(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.write(&wire.ResponseFrame{ID: r.id, OK: true, Payload: raw})
}

// Accept sends the interim acknowledgement of a two-phase request.
func (r *Responder) Accept(runID string) error {
	return r.Reply(map[string]string{"runId": runID, "status": wire.StatusAccepted})
}

// Fail sends a failed response.
func (r *Responder) Fail(code, message string) error {
	return r.write(&wire.ResponseFrame{ID: r.id, Error: &wire.ErrorShape{Code: code, Message: message}})
}

// Event sends an event on the connection.
func (r *Responder) Event(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.write(&wire.EventFrame{Event: name, Payload: raw})
}

func (r *Responder) write(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	mu := r.mu
	if mu == nil {
		mu = &r.wmu
	}
	mu.Lock()
	defer mu.Unlock()
	return r.conn.Write(r.ctx, websocket.MessageText, data)
}
