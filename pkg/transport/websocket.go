package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Defaults for WebSocketDialer.
const (
	// DefaultMaxMessageSize bounds a single inbound message.
	DefaultMaxMessageSize = 16 << 20

	// DefaultConnectTimeout bounds the opening handshake.
	DefaultConnectTimeout = 30 * time.Second
)

// WebSocketDialer dials gateways over WebSocket.
type WebSocketDialer struct {
	// TLSConfig is used for wss:// URLs. Nil uses system defaults.
	TLSConfig *tls.Config

	// Header is sent with the opening handshake.
	Header http.Header

	// MaxMessageSize is the read limit (default: 16 MiB).
	MaxMessageSize int64

	// ConnectTimeout applies when ctx has no deadline (default: 30s).
	ConnectTimeout time.Duration
}

// Dial opens a WebSocket connection to url.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts := &websocket.DialOptions{HTTPHeader: d.Header}
	if d.TLSConfig != nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: d.TLSConfig},
		}
	}

	conn, resp, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s failed (status: %s): %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s failed: %w", url, err)
	}

	limit := d.MaxMessageSize
	if limit == 0 {
		limit = DefaultMaxMessageSize
	}
	conn.SetReadLimit(limit)

	return &wsConn{conn: conn}, nil
}

// wsConn adapts a *websocket.Conn to Conn.
type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
}

// Send writes a text message. Concurrent writes are serialized by the library.
func (c *wsConn) Send(ctx context.Context, data []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return mapCloseError(err)
	}
	return nil
}

// Receive reads the next message. Binary messages are returned as-is.
func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, mapCloseError(err)
	}
	return data, nil
}

// Close performs the closing handshake. It may block until the peer answers
// or the library's close timeout passes.
func (c *wsConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		err := c.conn.Close(websocket.StatusCode(code), reason)
		if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, net.ErrClosed) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// mapCloseError converts library close errors into *CloseError.
func mapCloseError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: CloseCode(ce.Code), Reason: ce.Reason}
	}
	return err
}
