package handshake

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/gwlink/gwlink-go/pkg/pending"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// Defaults applied by New.
const (
	DefaultClientID     = "gateway-client"
	DefaultMode         = "backend"
	DefaultRole         = "operator"
	DefaultVersion      = "dev"
	DefaultTickInterval = 30 * time.Second
)

// DefaultScopes are requested when none are configured.
var DefaultScopes = []string{"operator.admin"}

// Options describe the identity and permissions announced in connect.
type Options struct {
	ClientID    string
	DisplayName string
	Version     string
	Platform    string
	Mode        string

	MinProtocol int
	MaxProtocol int

	Caps   []string
	Token  string
	Role   string
	Scopes []string

	// DefaultTickInterval applies when the hello carries no policy.
	DefaultTickInterval time.Duration

	// NewInstanceID generates the per-attempt instance id. Defaults to UUIDs.
	NewInstanceID func() string
}

// Requester issues a correlated request on the current connection.
type Requester interface {
	Send(method string, params any, opts pending.SendOptions) (*pending.Future, error)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(method string, params any, opts pending.SendOptions) (*pending.Future, error)

// Send implements Requester.
func (f RequesterFunc) Send(method string, params any, opts pending.SendOptions) (*pending.Future, error) {
	return f(method, params, opts)
}

// Session is the outcome of a successful handshake.
type Session struct {
	// Protocol is the negotiated protocol revision.
	Protocol int

	// TickInterval is the negotiated liveness interval.
	TickInterval time.Duration

	// Server describes the gateway, when announced.
	Server *wire.ServerInfo

	// Policy is the raw policy block, when present.
	Policy *wire.Policy

	// InstanceID is the per-attempt instance id that was sent.
	InstanceID string

	// Nonce is the challenge nonce, if a challenge preceded connect.
	Nonce string
}

// Coordinator builds and runs connect negotiations. It is safe for
// concurrent use; each Run is independent.
type Coordinator struct {
	opts Options
}

// New creates a Coordinator, filling unset options with defaults.
func New(opts Options) *Coordinator {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Platform == "" {
		opts.Platform = runtime.GOOS
	}
	if opts.Mode == "" {
		opts.Mode = DefaultMode
	}
	if opts.MinProtocol == 0 {
		opts.MinProtocol = wire.ProtocolVersion
	}
	if opts.MaxProtocol == 0 {
		opts.MaxProtocol = wire.ProtocolVersion
	}
	if opts.Role == "" {
		opts.Role = DefaultRole
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes
	}
	if opts.DefaultTickInterval <= 0 {
		opts.DefaultTickInterval = DefaultTickInterval
	}
	if opts.NewInstanceID == nil {
		opts.NewInstanceID = func() string { return uuid.New().String() }
	}
	return &Coordinator{opts: opts}
}

// Options returns the effective options.
func (c *Coordinator) Options() Options { return c.opts }

// BuildParams returns connect params with a fresh instance id.
func (c *Coordinator) BuildParams() wire.ConnectParams {
	caps := c.opts.Caps
	if caps == nil {
		caps = []string{}
	}
	p := wire.ConnectParams{
		MinProtocol: c.opts.MinProtocol,
		MaxProtocol: c.opts.MaxProtocol,
		Client: wire.ClientInfo{
			ID:          c.opts.ClientID,
			DisplayName: c.opts.DisplayName,
			Version:     c.opts.Version,
			Platform:    c.opts.Platform,
			Mode:        c.opts.Mode,
			InstanceID:  c.opts.NewInstanceID(),
		},
		Caps:   caps,
		Role:   c.opts.Role,
		Scopes: append([]string(nil), c.opts.Scopes...),
	}
	if c.opts.Token != "" {
		p.Auth = &wire.AuthParams{Token: c.opts.Token}
	}
	return p
}

// ParseChallenge extracts the nonce from a connect.challenge event.
func ParseChallenge(ev *wire.EventFrame) (string, error) {
	var ch wire.ChallengePayload
	if err := ev.DecodePayload(&ch); err != nil {
		return "", err
	}
	return ch.Nonce, nil
}

// Run sends connect through req and waits for the terminal reply. nonce is
// the recorded challenge nonce, if any; it is kept on the Session only.
// Every failure is a *HandshakeError.
func (c *Coordinator) Run(ctx context.Context, req Requester, nonce string) (*Session, error) {
	params := c.BuildParams()

	fut, err := req.Send(wire.MethodConnect, params, pending.SendOptions{})
	if err != nil {
		return nil, &HandshakeError{Err: err}
	}

	payload, err := fut.Wait(ctx)
	if err != nil {
		return nil, &HandshakeError{Err: err}
	}

	session, err := c.parseHello(payload)
	if err != nil {
		return nil, &HandshakeError{Err: err}
	}
	session.InstanceID = params.Client.InstanceID
	session.Nonce = nonce
	return session, nil
}

// parseHello reads the hello payload. An empty payload yields defaults.
func (c *Coordinator) parseHello(payload json.RawMessage) (*Session, error) {
	s := &Session{
		Protocol:     c.opts.MaxProtocol,
		TickInterval: c.opts.DefaultTickInterval,
	}
	if len(payload) == 0 || string(payload) == "null" {
		return s, nil
	}

	var hello wire.HelloPayload
	if err := json.Unmarshal(payload, &hello); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}

	if hello.Protocol != 0 {
		if hello.Protocol < c.opts.MinProtocol || hello.Protocol > c.opts.MaxProtocol {
			return nil, fmt.Errorf("gateway selected protocol %d outside %d..%d",
				hello.Protocol, c.opts.MinProtocol, c.opts.MaxProtocol)
		}
		s.Protocol = hello.Protocol
	}
	s.Server = hello.Server
	s.Policy = hello.Policy
	if hello.Policy != nil && hello.Policy.TickIntervalMs > 0 {
		s.TickInterval = time.Duration(hello.Policy.TickIntervalMs) * time.Millisecond
	}
	return s, nil
}
