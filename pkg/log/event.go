package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the connection attempt (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// ClientID is the client identity announced in the handshake.
	ClientID string `cbor:"6,keyasint,omitempty"`

	// URL is the gateway endpoint.
	URL string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Client state
	Control     *ControlEvent     `cbor:"13,keyasint,omitempty"` // Open/close
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (raw text frames).
	LayerTransport Layer = 0
	// LayerWire is the frame encoding layer (decoded JSON).
	LayerWire Layer = 1
	// LayerClient is the connection manager.
	LayerClient Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol frame (event/request/response).
	CategoryMessage Category = 0
	// CategoryControl indicates a socket open or close.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame text (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded frame at the wire layer.
type MessageEvent struct {
	// Type distinguishes event/request/response.
	Type MessageType `cbor:"1,keyasint"`

	// ID correlates request/response pairs (empty for events).
	ID string `cbor:"2,keyasint,omitempty"`

	// Name is the request method or event name.
	Name string `cbor:"3,keyasint,omitempty"`

	// OK is the response outcome (responses only).
	OK *bool `cbor:"4,keyasint,omitempty"`

	// Status is payload.status of a response, when present.
	Status string `cbor:"5,keyasint,omitempty"`

	// ErrorCode and ErrorMessage describe a failed response.
	ErrorCode    string `cbor:"6,keyasint,omitempty"`
	ErrorMessage string `cbor:"7,keyasint,omitempty"`

	// Payload is the JSON params or payload, possibly truncated.
	Payload []byte `cbor:"8,keyasint,omitempty"`

	// Latency is the time from request send to this response.
	Latency *time.Duration `cbor:"9,keyasint,omitempty"`

	// Seq is the gateway event sequence number.
	Seq *int64 `cbor:"10,keyasint,omitempty"`
}

// MessageType distinguishes event/request/response.
type MessageType uint8

const (
	// MessageTypeEvent indicates a gateway event.
	MessageTypeEvent MessageType = 0
	// MessageTypeRequest indicates a request.
	MessageTypeRequest MessageType = 1
	// MessageTypeResponse indicates a response.
	MessageTypeResponse MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeEvent:
		return "EVENT"
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityHandshake indicates a handshake milestone.
	StateEntityHandshake StateEntity = 1
	// StateEntityHeartbeat indicates a heartbeat monitor change.
	StateEntityHeartbeat StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityHandshake:
		return "HANDSHAKE"
	case StateEntityHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures socket open and close.
type ControlEvent struct {
	// Type of control event.
	Type ControlType `cbor:"1,keyasint"`

	// CloseCode is the WebSocket status code for close events.
	CloseCode *int `cbor:"2,keyasint,omitempty"`

	// Reason is the close reason text.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ControlType indicates the type of control event.
type ControlType uint8

const (
	// ControlOpen indicates the socket opened.
	ControlOpen ControlType = 0
	// ControlClose indicates the socket closed.
	ControlClose ControlType = 1
)

// String returns the control type name.
func (c ControlType) String() string {
	switch c {
	case ControlOpen:
		return "OPEN"
	case ControlClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (close code, protocol reason, request code).
	Code string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
