package pending

import (
	"errors"
	"fmt"
	"time"
)

// Registry errors.
var (
	// ErrRegistryClosed is returned by Send after Close.
	ErrRegistryClosed = errors.New("pending registry closed")

	// ErrRequestTimeout matches every *TimeoutError via errors.Is.
	ErrRequestTimeout = errors.New("request timed out")
)

// RequestError is a failure the gateway returned for one request (ok:false).
type RequestError struct {
	Method  string
	Code    string
	Message string
	Details any
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "request failed"
}

// TimeoutError reports a request whose deadline passed without a terminal
// response. The connection is not affected.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: request timed out after %s", e.Method, e.Timeout)
}

// Is makes errors.Is(err, ErrRequestTimeout) true.
func (e *TimeoutError) Is(target error) bool { return target == ErrRequestTimeout }
