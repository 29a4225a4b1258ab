package transport

import (
	"context"
)

// Conn is one established duplex message connection.
// Send may be called concurrently with Receive. Implementations serialize
// concurrent Sends.
type Conn interface {
	// Send writes one text message.
	Send(ctx context.Context, data []byte) error

	// Receive blocks for the next message. After the connection closes it
	// returns a *CloseError (or another error for abnormal loss).
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the connection with a status code and reason.
	// Subsequent calls are no-ops.
	Close(code CloseCode, reason string) error
}

// Dialer opens connections to a gateway URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// Compile-time interface satisfaction checks.
var (
	_ Conn   = (*wsConn)(nil)
	_ Conn   = (*pipeConn)(nil)
	_ Conn   = (*captureConn)(nil)
	_ Dialer = (*WebSocketDialer)(nil)
	_ Dialer = DialerFunc(nil)
)
