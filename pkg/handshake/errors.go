package handshake

import (
	"errors"
	"fmt"
)

// ErrHandshake matches every *HandshakeError via errors.Is.
var ErrHandshake = errors.New("handshake failed")

// HandshakeError reports a rejected or unusable connect negotiation.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrHandshake) true.
func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }
