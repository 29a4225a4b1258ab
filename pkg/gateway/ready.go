package gateway

import (
	"context"
	"sync"
)

// ReadySignal is a single-assignment notification that a handshake has
// completed. Any number of goroutines may wait on it.
type ReadySignal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newReadySignal() *ReadySignal {
	return &ReadySignal{done: make(chan struct{})}
}

func rejectedSignal(err error) *ReadySignal {
	r := newReadySignal()
	r.resolve(err)
	return r
}

// Done is closed when the signal resolves.
func (r *ReadySignal) Done() <-chan struct{} { return r.done }

// Resolved reports whether the signal has been resolved.
func (r *ReadySignal) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err returns the rejection error, or nil while pending or after success.
func (r *ReadySignal) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the signal resolves or ctx ends.
func (r *ReadySignal) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve completes the signal; a nil err means ready. Only the first call
// has an effect.
func (r *ReadySignal) resolve(err error) bool {
	resolved := false
	r.once.Do(func() {
		r.err = err
		close(r.done)
		resolved = true
	})
	return resolved
}
