package transport

import (
	"errors"
	"fmt"
)

// CloseCode is a WebSocket close status code.
type CloseCode int

// Close codes used by the client.
const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseNoStatus        CloseCode = 1005
	CloseAbnormal        CloseCode = 1006
	ClosePolicyViolation CloseCode = 1008

	// CloseTickTimeout is sent when the heartbeat gap is exceeded.
	CloseTickTimeout CloseCode = 4000
)

// String returns a short name for well-known codes.
func (c CloseCode) String() string {
	switch c {
	case CloseNormal:
		return "normal"
	case CloseGoingAway:
		return "going away"
	case CloseNoStatus:
		return "no status"
	case CloseAbnormal:
		return "abnormal"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseTickTimeout:
		return "tick timeout"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// ErrClosed is returned by Send on a closed connection.
var ErrClosed = errors.New("connection closed")

// CloseError reports that a connection was closed with a status.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closed (%d): %s", int(e.Code), e.Reason)
}

// Is makes errors.Is(err, ErrClosed) true for any CloseError.
func (e *CloseError) Is(target error) bool { return target == ErrClosed }

// CloseStatus returns the close code carried by err, or -1 when err is not
// a close.
func CloseStatus(err error) CloseCode {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}
