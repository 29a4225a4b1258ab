package handshake

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gwlink/gwlink-go/pkg/pending"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// stubRequester is a testify mock for Requester.
type stubRequester struct {
	mock.Mock
}

func (s *stubRequester) Send(method string, params any, opts pending.SendOptions) (*pending.Future, error) {
	args := s.Called(method, params, opts)
	fut, _ := args.Get(0).(*pending.Future)
	return fut, args.Error(1)
}

// newFuture registers a connect request in a registry and returns its
// future together with a function that answers it.
func newFuture(t *testing.T) (*pending.Future, func(*wire.ResponseFrame)) {
	t.Helper()
	reg := pending.NewRegistry(pending.Options{})
	fut, err := reg.Send(pending.SenderFunc(func(wire.Frame) error { return nil }), wire.MethodConnect, nil, pending.SendOptions{})
	require.NoError(t, err)
	return fut, func(res *wire.ResponseFrame) {
		res.ID = fut.ID()
		reg.Resolve(res)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	o := c.Options()

	assert.Equal(t, DefaultClientID, o.ClientID)
	assert.Equal(t, DefaultVersion, o.Version)
	assert.Equal(t, runtime.GOOS, o.Platform)
	assert.Equal(t, DefaultMode, o.Mode)
	assert.Equal(t, wire.ProtocolVersion, o.MinProtocol)
	assert.Equal(t, wire.ProtocolVersion, o.MaxProtocol)
	assert.Equal(t, "operator", o.Role)
	assert.Equal(t, []string{"operator.admin"}, o.Scopes)
	assert.Equal(t, 30*time.Second, o.DefaultTickInterval)
}

func TestBuildParams(t *testing.T) {
	n := 0
	c := New(Options{
		ClientID:    "bridge",
		DisplayName: "QQ bridge",
		Version:     "1.2.3",
		Platform:    "linux",
		Token:       "secret",
		NewInstanceID: func() string {
			n++
			return []string{"inst-a", "inst-b"}[n-1]
		},
	})

	p := c.BuildParams()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"minProtocol":3,"maxProtocol":3,
		"client":{"id":"bridge","displayName":"QQ bridge","version":"1.2.3","platform":"linux","mode":"backend","instanceId":"inst-a"},
		"caps":[],"auth":{"token":"secret"},"role":"operator","scopes":["operator.admin"]
	}`, string(data))

	// Fresh instance id per attempt.
	assert.Equal(t, "inst-b", c.BuildParams().Client.InstanceID)
}

func TestBuildParamsWithoutToken(t *testing.T) {
	p := New(Options{}).BuildParams()
	assert.Nil(t, p.Auth)
	assert.NotEmpty(t, p.Client.InstanceID)
	assert.NotEqual(t, p.Client.InstanceID, New(Options{}).BuildParams().Client.InstanceID)
}

func TestRunSuccessWithPolicy(t *testing.T) {
	fut, answer := newFuture(t)
	req := &stubRequester{}
	req.On("Send", wire.MethodConnect, mock.AnythingOfType("wire.ConnectParams"), pending.SendOptions{}).
		Return(fut, nil).Once()

	c := New(Options{NewInstanceID: func() string { return "inst-1" }})

	go answer(&wire.ResponseFrame{
		OK:      true,
		Payload: json.RawMessage(`{"type":"hello-ok","protocol":3,"server":{"version":"2026.1","connId":"c1"},"policy":{"tickIntervalMs":5000}}`),
	})

	s, err := c.Run(context.Background(), req, "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, s.TickInterval)
	assert.Equal(t, 3, s.Protocol)
	require.NotNil(t, s.Server)
	assert.Equal(t, "c1", s.Server.ConnID)
	assert.Equal(t, "inst-1", s.InstanceID)
	assert.Equal(t, "nonce-1", s.Nonce)
	req.AssertExpectations(t)

	// The nonce is never placed into the connect params.
	params := req.Calls[0].Arguments.Get(1).(wire.ConnectParams)
	data, _ := json.Marshal(params)
	assert.NotContains(t, string(data), "nonce-1")
}

func TestRunDefaultTickInterval(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"Empty", ``},
		{"NoPolicy", `{"type":"hello-ok"}`},
		{"ZeroInterval", `{"policy":{"tickIntervalMs":0}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fut, answer := newFuture(t)
			req := &stubRequester{}
			req.On("Send", wire.MethodConnect, mock.Anything, mock.Anything).Return(fut, nil)

			answer(&wire.ResponseFrame{OK: true, Payload: json.RawMessage(tt.payload)})

			s, err := New(Options{DefaultTickInterval: 15 * time.Second}).Run(context.Background(), req, "")
			require.NoError(t, err)
			assert.Equal(t, 15*time.Second, s.TickInterval)
		})
	}
}

func TestRunRejected(t *testing.T) {
	fut, answer := newFuture(t)
	req := &stubRequester{}
	req.On("Send", wire.MethodConnect, mock.Anything, mock.Anything).Return(fut, nil)

	answer(&wire.ResponseFrame{OK: false, Error: &wire.ErrorShape{Code: "UNAUTHORIZED", Message: "invalid token"}})

	_, err := New(Options{}).Run(context.Background(), req, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)

	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	var reqErr *pending.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "UNAUTHORIZED", reqErr.Code)
	assert.Equal(t, "handshake failed: invalid token", err.Error())
}

func TestRunSendFailure(t *testing.T) {
	req := &stubRequester{}
	sendErr := errors.New("connection closed")
	req.On("Send", wire.MethodConnect, mock.Anything, mock.Anything).Return(nil, sendErr)

	_, err := New(Options{}).Run(context.Background(), req, "")
	assert.ErrorIs(t, err, ErrHandshake)
	assert.ErrorIs(t, err, sendErr)
}

func TestRunUnsupportedProtocol(t *testing.T) {
	fut, answer := newFuture(t)
	req := &stubRequester{}
	req.On("Send", wire.MethodConnect, mock.Anything, mock.Anything).Return(fut, nil)

	answer(&wire.ResponseFrame{OK: true, Payload: json.RawMessage(`{"protocol":9}`)})

	_, err := New(Options{}).Run(context.Background(), req, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "protocol 9")
}

func TestRunMalformedHello(t *testing.T) {
	fut, answer := newFuture(t)
	req := &stubRequester{}
	req.On("Send", wire.MethodConnect, mock.Anything, mock.Anything).Return(fut, nil)

	answer(&wire.ResponseFrame{OK: true, Payload: json.RawMessage(`{"policy":"x"}`)})

	_, err := New(Options{}).Run(context.Background(), req, "")
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestRunContextCancelled(t *testing.T) {
	fut, _ := newFuture(t)
	req := &stubRequester{}
	req.On("Send", wire.MethodConnect, mock.Anything, mock.Anything).Return(fut, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Run(ctx, req, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestParseChallenge(t *testing.T) {
	nonce, err := ParseChallenge(&wire.EventFrame{Event: wire.EventConnectChallenge, Payload: json.RawMessage(`{"nonce":"n-1","ts":1}`)})
	require.NoError(t, err)
	assert.Equal(t, "n-1", nonce)

	nonce, err = ParseChallenge(&wire.EventFrame{Event: wire.EventConnectChallenge})
	require.NoError(t, err)
	assert.Empty(t, nonce)

	_, err = ParseChallenge(&wire.EventFrame{Event: wire.EventConnectChallenge, Payload: json.RawMessage(`[1]`)})
	assert.Error(t, err)
}

func TestRequesterFunc(t *testing.T) {
	called := false
	var r Requester = RequesterFunc(func(method string, params any, opts pending.SendOptions) (*pending.Future, error) {
		called = true
		return nil, errors.New("x")
	})
	_, err := r.Send("connect", nil, pending.SendOptions{})
	assert.Error(t, err)
	assert.True(t, called)
}
