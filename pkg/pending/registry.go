package pending

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwlink/gwlink-go/pkg/wire"
)

// Sender transmits frames on the current transport.
type Sender interface {
	SendFrame(f wire.Frame) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(f wire.Frame) error

// SendFrame implements Sender.
func (fn SenderFunc) SendFrame(f wire.Frame) error { return fn(f) }

// SendOptions tune a single request.
type SendOptions struct {
	// ExpectFinal ignores interim "accepted" responses.
	ExpectFinal bool

	// Timeout fails the request with a *TimeoutError when no terminal
	// response arrives in time. Zero waits indefinitely.
	Timeout time.Duration
}

// Completion describes a finished request, for metrics and tracing.
type Completion struct {
	ID       string
	Method   string
	Duration time.Duration
	Err      error
}

// Options configure a Registry.
type Options struct {
	// NewID generates request ids. Defaults to random UUIDs.
	NewID func() string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// OnComplete is called after every completed request, outside the
	// registry lock.
	OnComplete func(Completion)
}

// entry is one in-flight request.
type entry struct {
	future      *Future
	method      string
	expectFinal bool
	accepted    bool
	created     time.Time
	timer       *time.Timer
}

// Registry stores in-flight requests keyed by id. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*entry
	closed  error

	newID      func() string
	now        func() time.Time
	onComplete func(Completion)
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		pending:    make(map[string]*entry),
		newID:      opts.NewID,
		now:        opts.Now,
		onComplete: opts.OnComplete,
	}
}

// Send registers a request, transmits it through s and returns its future.
// If the transmit fails the entry is removed and the error returned.
func (r *Registry) Send(s Sender, method string, params any, opts SendOptions) (*Future, error) {
	frame, err := wire.NewRequest("", method, params)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed != nil {
		cause := r.closed
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrRegistryClosed, cause)
	}

	id := r.newID()
	for _, dup := r.pending[id]; dup; _, dup = r.pending[id] {
		id = r.newID()
	}
	frame.ID = id

	fut := newFuture(id, method, r)
	e := &entry{
		future:      fut,
		method:      method,
		expectFinal: opts.ExpectFinal,
		created:     r.now(),
	}
	if opts.Timeout > 0 {
		timeout := opts.Timeout
		e.timer = time.AfterFunc(timeout, func() {
			r.finish(id, nil, &TimeoutError{Method: method, Timeout: timeout})
		})
	}
	r.pending[id] = e
	r.mu.Unlock()

	if err := s.SendFrame(frame); err != nil {
		sendErr := fmt.Errorf("send %s: %w", method, err)
		r.finish(id, nil, sendErr)
		return nil, sendErr
	}
	return fut, nil
}

// Resolve routes a response to its pending entry. It returns false when no
// entry matches the id; such frames are dropped.
func (r *Registry) Resolve(res *wire.ResponseFrame) bool {
	r.mu.Lock()
	e, ok := r.pending[res.ID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if e.expectFinal && res.IsAccepted() {
		e.accepted = true
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()

	if res.OK {
		r.finish(res.ID, res.Payload, nil)
		return true
	}

	reqErr := &RequestError{Method: e.method, Message: res.ErrorMessage()}
	if res.Error != nil {
		reqErr.Code = res.Error.Code
		reqErr.Details = res.Error.Details
	}
	r.finish(res.ID, nil, reqErr)
	return true
}

// FlushAll fails every pending entry with err and clears the table.
// It returns the number of entries flushed.
func (r *Registry) FlushAll(err error) int {
	r.mu.Lock()
	flushed := r.drainLocked(err)
	r.mu.Unlock()

	r.report(flushed)
	return len(flushed)
}

// Close flushes all entries with err and rejects subsequent sends.
// Closing an already closed registry only flushes.
func (r *Registry) Close(err error) int {
	r.mu.Lock()
	if r.closed == nil {
		r.closed = err
		if r.closed == nil {
			r.closed = ErrRegistryClosed
		}
	}
	flushed := r.drainLocked(err)
	r.mu.Unlock()

	r.report(flushed)
	return len(flushed)
}

// Len returns the number of in-flight requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Has reports whether id is pending.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

// Accepted reports whether id is pending and has been acknowledged.
func (r *Registry) Accepted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[id]
	return ok && e.accepted
}

// cancel removes id, completing its future with err.
func (r *Registry) cancel(id string, err error) {
	r.finish(id, nil, err)
}

// finish removes id and completes its future. Unknown ids are ignored.
func (r *Registry) finish(id string, payload json.RawMessage, err error) {
	r.mu.Lock()
	e, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pending, id)
	if e.timer != nil {
		e.timer.Stop()
	}
	e.future.complete(payload, err)
	c := Completion{ID: id, Method: e.method, Duration: r.now().Sub(e.created), Err: err}
	r.mu.Unlock()

	r.report([]Completion{c})
}

// drainLocked fails and removes every entry. r.mu must be held.
func (r *Registry) drainLocked(err error) []Completion {
	if len(r.pending) == 0 {
		return nil
	}
	now := r.now()
	out := make([]Completion, 0, len(r.pending))
	for id, e := range r.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.future.complete(nil, err)
		out = append(out, Completion{ID: id, Method: e.method, Duration: now.Sub(e.created), Err: err})
	}
	r.pending = make(map[string]*entry)
	return out
}

func (r *Registry) report(cs []Completion) {
	if r.onComplete == nil {
		return
	}
	for _, c := range cs {
		r.onComplete(c)
	}
}
