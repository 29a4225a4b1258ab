package gateway

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gwlink/gwlink-go/pkg/connection"
	"github.com/gwlink/gwlink-go/pkg/handshake"
	"github.com/gwlink/gwlink-go/pkg/log"
	"github.com/gwlink/gwlink-go/pkg/metrics"
	"github.com/gwlink/gwlink-go/pkg/pending"
	"github.com/gwlink/gwlink-go/pkg/transport"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// DefaultChallengeTimeout is how long the client waits for connect.challenge
// before sending connect anyway.
const DefaultChallengeTimeout = 750 * time.Millisecond

// Config configures a Client.
type Config struct {
	// URL is the gateway endpoint (ws:// or wss://).
	URL string

	// Dialer opens transports. Defaults to a transport.WebSocketDialer.
	Dialer transport.Dialer

	// Handshake describes the identity announced in connect.
	Handshake handshake.Options

	// ChallengeTimeout bounds the wait for connect.challenge (default: 750ms).
	ChallengeTimeout time.Duration

	// RequestTimeout is the default per-request deadline. Zero disables it.
	RequestTimeout time.Duration

	// Backoff tunes the reconnect delays.
	Backoff connection.BackoffConfig

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger

	// Metrics records client metrics. Nil disables them.
	Metrics *metrics.Metrics

	// OnEvent receives gateway events other than connect.challenge and tick.
	// It runs on the read goroutine and must not block.
	OnEvent func(*wire.EventFrame)

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewConnID generates connection attempt ids. Defaults to UUIDs.
	NewConnID func() string
}

func (c *Config) applyDefaults() error {
	if c.Dialer == nil {
		if c.URL == "" {
			return errors.New("gateway: URL is required")
		}
		c.Dialer = &transport.WebSocketDialer{}
	}
	if c.ChallengeTimeout <= 0 {
		c.ChallengeTimeout = DefaultChallengeTimeout
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Logger = c.Logger.With("component", "gateway")
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewConnID == nil {
		c.NewConnID = func() string { return uuid.New().String() }
	}
	return nil
}

// CallOption tunes a single request.
type CallOption func(*pending.SendOptions)

// ExpectFinal makes the request ignore interim "accepted" responses and
// complete only on the final one.
func ExpectFinal() CallOption {
	return func(o *pending.SendOptions) { o.ExpectFinal = true }
}

// WithTimeout sets a per-request deadline, overriding Config.RequestTimeout.
// Zero disables the deadline.
func WithTimeout(d time.Duration) CallOption {
	return func(o *pending.SendOptions) { o.Timeout = d }
}
