package wire

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the frame variant.
type Kind uint8

const (
	// KindEvent is a gateway-initiated event.
	KindEvent Kind = iota
	// KindRequest is a correlated request.
	KindRequest
	// KindResponse is the answer to a request.
	KindResponse
)

// String returns the discriminator used on the wire.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return TypeEvent
	case KindRequest:
		return TypeRequest
	case KindResponse:
		return TypeResponse
	default:
		return "unknown"
	}
}

// Frame type discriminators.
const (
	TypeEvent    = "event"
	TypeRequest  = "req"
	TypeResponse = "res"
)

// Frame is one of *EventFrame, *RequestFrame or *ResponseFrame.
// The set is closed: the marker method is unexported.
type Frame interface {
	Kind() Kind
	isFrame()
}

// EventFrame is an unsolicited message from the gateway.
type EventFrame struct {
	Event   string
	Payload json.RawMessage

	// Seq is the optional gateway event sequence number.
	Seq *int64
}

// Kind implements Frame.
func (*EventFrame) Kind() Kind { return KindEvent }
func (*EventFrame) isFrame()   {}

// DecodePayload unmarshals the event payload into v.
// An absent payload leaves v untouched.
func (e *EventFrame) DecodePayload(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// RequestFrame is a correlated call from the client.
type RequestFrame struct {
	ID     string
	Method string
	Params json.RawMessage
}

// Kind implements Frame.
func (*RequestFrame) Kind() Kind { return KindRequest }
func (*RequestFrame) isFrame()   {}

// NewRequest builds a request frame, marshalling params to JSON.
// Nil params are sent as an empty object.
func NewRequest(id, method string, params any) (*RequestFrame, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return &RequestFrame{ID: id, Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		return p, nil
	case []byte:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(params)
	}
}

// ResponseFrame answers a RequestFrame with the same ID.
type ResponseFrame struct {
	ID      string
	OK      bool
	Payload json.RawMessage
	Error   *ErrorShape
}

// Kind implements Frame.
func (*ResponseFrame) Kind() Kind { return KindResponse }
func (*ResponseFrame) isFrame()   {}

// Status returns payload.status when the payload is an object carrying a
// string status field, and "" otherwise.
func (r *ResponseFrame) Status() string {
	if len(r.Payload) == 0 || r.Payload[0] != '{' {
		return ""
	}
	var probe struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(r.Payload, &probe); err != nil {
		return ""
	}
	return probe.Status
}

// IsAccepted reports whether the frame is an interim acknowledgement of a
// two-phase request.
func (r *ResponseFrame) IsAccepted() bool {
	return r.Status() == StatusAccepted
}

// ErrorMessage returns the carried error message, or a generic one.
func (r *ResponseFrame) ErrorMessage() string {
	if r.Error != nil && r.Error.Message != "" {
		return r.Error.Message
	}
	return "request failed"
}

// ErrorShape is the error object of a failed response.
type ErrorShape struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// Compile-time interface satisfaction checks.
var (
	_ Frame = (*EventFrame)(nil)
	_ Frame = (*RequestFrame)(nil)
	_ Frame = (*ResponseFrame)(nil)
)
