package connection

// State represents the gateway connection state.
type State uint8

const (
	// StateDisconnected indicates no transport. A reconnect may be scheduled.
	StateDisconnected State = iota

	// StateConnecting indicates the transport is being dialled.
	StateConnecting

	// StateOpen indicates the transport is open and the challenge timer is
	// about to be armed.
	StateOpen

	// StateAwaitingChallenge indicates the client waits for connect.challenge
	// or for the challenge timer to fire.
	StateAwaitingChallenge

	// StateHandshaking indicates the connect request is in flight.
	StateHandshaking

	// StateReady indicates a completed handshake. Requests are accepted.
	StateReady

	// StateStopped indicates the client has been stopped. Terminal.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateAwaitingChallenge:
		return "AWAITING_CHALLENGE"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateReady:
		return "READY"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateStopped
}

// IsActive reports whether a connection attempt is underway or complete.
func (s State) IsActive() bool {
	switch s {
	case StateConnecting, StateOpen, StateAwaitingChallenge, StateHandshaking, StateReady:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s State) CanTransition(next State) bool {
	if s == StateStopped {
		return false
	}
	if next == StateStopped {
		return true
	}
	if next == StateDisconnected {
		return s != StateDisconnected
	}

	switch s {
	case StateDisconnected:
		return next == StateConnecting
	case StateConnecting:
		return next == StateOpen
	case StateOpen:
		return next == StateAwaitingChallenge
	case StateAwaitingChallenge:
		return next == StateHandshaking
	case StateHandshaking:
		return next == StateReady
	}
	return false
}
