package gateway

import (
	"errors"

	"github.com/gwlink/gwlink-go/pkg/handshake"
	"github.com/gwlink/gwlink-go/pkg/log"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// Frame drop reasons beyond wire.ProtocolError reasons.
const (
	dropUnmatchedResponse = "unmatched_response"
	dropUnexpectedRequest = "unexpected_request"
)

// dispatch decodes one inbound text frame and routes it. It runs on the
// attempt's read goroutine, so frames are handled in arrival order.
func (c *Client) dispatch(att *attempt, data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		c.dropMalformed(att, err)
		return
	}
	c.capture.Log(log.NewMessageEvent(att.id, log.DirectionIn, frame))

	switch f := frame.(type) {
	case *wire.EventFrame:
		c.handleEvent(att, f)
	case *wire.ResponseFrame:
		if !att.registry.Resolve(f) {
			c.logger.Debug("dropping unmatched response", "conn", att.id, "id", f.ID)
			c.metrics.FrameDropped(dropUnmatchedResponse)
		}
	case *wire.RequestFrame:
		c.logger.Debug("dropping gateway request", "conn", att.id, "method", f.Method)
		c.metrics.FrameDropped(dropUnexpectedRequest)
	}
}

func (c *Client) handleEvent(att *attempt, ev *wire.EventFrame) {
	switch ev.Event {
	case wire.EventConnectChallenge:
		nonce, err := handshake.ParseChallenge(ev)
		if err != nil {
			c.logger.Warn("malformed challenge payload", "conn", att.id, "error", err)
		}
		c.mu.Lock()
		if c.att == att && !att.handshakeStarted {
			att.nonce = nonce
			c.beginHandshakeLocked(att, "challenge")
		}
		c.mu.Unlock()

	case wire.EventTick:
		c.mu.Lock()
		mon := att.monitor
		c.mu.Unlock()
		if mon != nil {
			mon.Touch()
		}

	default:
		c.mu.Lock()
		h := c.onEvent
		c.mu.Unlock()
		if h != nil {
			h(ev)
		}
	}
}

// dropMalformed records a frame that could not be decoded. The connection
// stays up.
func (c *Client) dropMalformed(att *attempt, err error) {
	reason := wire.ReasonMalformed
	var pe *wire.ProtocolError
	if errors.As(err, &pe) {
		reason = pe.Reason
	}
	c.logger.Warn("dropping frame", "conn", att.id, "reason", reason, "error", err)
	c.capture.Log(log.NewErrorEvent(att.id, log.LayerWire, err, reason, "decode"))
	c.metrics.FrameDropped(reason)
}
