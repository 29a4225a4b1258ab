package transport

import (
	"context"
	"sync"
)

// pipeBuffer is the number of messages buffered per direction.
const pipeBuffer = 64

// pipeState is shared by both ends of a pipe.
type pipeState struct {
	once   sync.Once
	closed chan struct{}
	err    *CloseError
}

func (s *pipeState) close(code CloseCode, reason string) {
	s.once.Do(func() {
		s.err = &CloseError{Code: code, Reason: reason}
		close(s.closed)
	})
}

// pipeConn is one end of an in-memory connection.
type pipeConn struct {
	in    chan []byte
	out   chan []byte
	state *pipeState
}

// Pipe returns two connected in-memory Conns. Messages sent on one are
// received on the other in order. Closing either end closes both with the
// same *CloseError.
func Pipe() (Conn, Conn) {
	state := &pipeState{closed: make(chan struct{})}
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	return &pipeConn{in: ba, out: ab, state: state}, &pipeConn{in: ab, out: ba, state: state}
}

// Send queues a copy of data for the peer.
func (p *pipeConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-p.state.closed:
		return p.state.err
	default:
	}

	msg := append([]byte(nil), data...)
	select {
	case p.out <- msg:
		return nil
	case <-p.state.closed:
		return p.state.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next queued message. Messages already queued when the
// pipe closes are not delivered.
func (p *pipeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-p.state.closed:
		return nil, p.state.err
	default:
	}

	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.state.closed:
		return nil, p.state.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends.
func (p *pipeConn) Close(code CloseCode, reason string) error {
	p.state.close(code, reason)
	return nil
}
