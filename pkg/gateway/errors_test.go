package gateway

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gwlink/gwlink-go/pkg/transport"
)

func TestTransportErrorMatching(t *testing.T) {
	cause := &transport.CloseError{Code: transport.CloseGoingAway, Reason: "restart"}
	err := fmt.Errorf("request: %w", &TransportError{Op: "read", Err: cause})

	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, transport.CloseGoingAway, transport.CloseStatus(err))
	assert.Contains(t, err.Error(), "gateway read")

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, "read", te.Op)
}

func TestStaleConnectionError(t *testing.T) {
	err := &StaleConnectionError{Elapsed: 25 * time.Second, Interval: 10 * time.Second}
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.NotErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, "tick timeout: no tick for 25s (interval 10s)", err.Error())
}
