package transport

import (
	"context"
	"errors"
	"time"

	"github.com/gwlink/gwlink-go/pkg/log"
)

// captureConn records raw frames and closes of a Conn into a protocol log.
type captureConn struct {
	Conn
	logger log.Logger
	connID string
}

// WithCapture wraps conn so every sent and received frame, and the close,
// is recorded in logger under connID. A nil logger returns conn unchanged.
func WithCapture(conn Conn, logger log.Logger, connID string) Conn {
	if logger == nil {
		return conn
	}
	return &captureConn{Conn: conn, logger: logger, connID: connID}
}

func (c *captureConn) Send(ctx context.Context, data []byte) error {
	if err := c.Conn.Send(ctx, data); err != nil {
		return err
	}
	c.logger.Log(log.NewFrameEvent(c.connID, log.DirectionOut, data))
	return nil
}

func (c *captureConn) Receive(ctx context.Context) ([]byte, error) {
	data, err := c.Conn.Receive(ctx)
	if err != nil {
		var ce *CloseError
		if errors.As(err, &ce) {
			c.logClose(log.DirectionIn, ce.Code, ce.Reason)
		}
		return nil, err
	}
	c.logger.Log(log.NewFrameEvent(c.connID, log.DirectionIn, data))
	return data, nil
}

func (c *captureConn) Close(code CloseCode, reason string) error {
	c.logClose(log.DirectionOut, code, reason)
	return c.Conn.Close(code, reason)
}

func (c *captureConn) logClose(dir log.Direction, code CloseCode, reason string) {
	n := int(code)
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		Control:      &log.ControlEvent{Type: log.ControlClose, CloseCode: &n, Reason: reason},
	})
}
