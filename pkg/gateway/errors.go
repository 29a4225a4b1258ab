package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Gateway client errors.
var (
	// ErrNotConnected is returned by Call when the client is not Ready.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrClientStopped is returned once Stop has been called.
	ErrClientStopped = errors.New("gateway client stopped")

	// ErrConnectionLost matches every connection-wide failure
	// (*TransportError and *StaleConnectionError).
	ErrConnectionLost = errors.New("gateway connection lost")
)

// TransportError reports a dial, read, write or close failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnectionLost) true.
func (e *TransportError) Is(target error) bool { return target == ErrConnectionLost }

// StaleConnectionError reports that no tick arrived for too long.
type StaleConnectionError struct {
	Elapsed  time.Duration
	Interval time.Duration
}

func (e *StaleConnectionError) Error() string {
	return fmt.Sprintf("tick timeout: no tick for %s (interval %s)", e.Elapsed, e.Interval)
}

// Is makes errors.Is(err, ErrConnectionLost) true.
func (e *StaleConnectionError) Is(target error) bool { return target == ErrConnectionLost }
