package pending

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the completion of one request. It completes at most once, with
// either a payload or an error.
type Future struct {
	id     string
	method string
	reg    *Registry

	once    sync.Once
	done    chan struct{}
	payload json.RawMessage
	err     error
}

func newFuture(id, method string, reg *Registry) *Future {
	return &Future{
		id:     id,
		method: method,
		reg:    reg,
		done:   make(chan struct{}),
	}
}

// ID returns the request id the future is correlated with.
func (f *Future) ID() string { return f.id }

// Method returns the request method.
func (f *Future) Method() string { return f.method }

// Done is closed once the future has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future) Result() (json.RawMessage, error) {
	return f.payload, f.err
}

// Wait blocks until the future completes or ctx ends. When ctx ends first
// the request is removed from its registry and ctx.Err() is returned; a
// response arriving later for it is dropped.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.payload, f.err
	case <-ctx.Done():
	}

	if f.reg != nil {
		f.reg.cancel(f.id, ctx.Err())
	} else {
		f.complete(nil, ctx.Err())
	}
	<-f.done
	return f.payload, f.err
}

// complete sets the outcome once. Later calls are ignored.
func (f *Future) complete(payload json.RawMessage, err error) bool {
	completed := false
	f.once.Do(func() {
		f.payload = payload
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}
