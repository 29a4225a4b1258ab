package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Protocol error reasons.
const (
	ReasonMalformed   = "malformed"
	ReasonUnknownType = "unknown_type"
	ReasonMissingID   = "missing_id"
	ReasonMissingName = "missing_name"
	ReasonUnroutable  = "unroutable"
)

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("protocol error")

// ProtocolError reports a frame that could not be decoded or routed.
// It never terminates a connection; callers log and drop the frame.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error (%s)", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProtocol) true for any ProtocolError.
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// envelope is the union of all frame fields as they appear on the wire.
type envelope struct {
	Type    string          `json:"type,omitempty"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     *int64          `json:"seq,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

// Encode serializes a frame to its JSON text form.
func Encode(f Frame) ([]byte, error) {
	var env envelope
	switch fr := f.(type) {
	case *EventFrame:
		env = envelope{Type: TypeEvent, Event: fr.Event, Payload: fr.Payload, Seq: fr.Seq}
	case *RequestFrame:
		params := fr.Params
		if len(params) == 0 {
			params = json.RawMessage("{}")
		}
		env = envelope{Type: TypeRequest, ID: fr.ID, Method: fr.Method, Params: params}
	case *ResponseFrame:
		ok := fr.OK
		env = envelope{Type: TypeResponse, ID: fr.ID, OK: &ok, Payload: fr.Payload, Error: fr.Error}
	case nil:
		return nil, errors.New("encode: nil frame")
	default:
		return nil, fmt.Errorf("encode: unsupported frame %T", f)
	}
	return json.Marshal(env)
}

// Decode parses one JSON text frame. All failures are *ProtocolError.
func Decode(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, &ProtocolError{Reason: ReasonMalformed, Err: errors.New("frame is not a JSON object")}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: ReasonMalformed, Err: err}
	}

	kind, err := classify(&env)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindEvent:
		if env.Event == "" {
			return nil, &ProtocolError{Reason: ReasonMissingName, Err: errors.New("event frame without name")}
		}
		return &EventFrame{Event: env.Event, Payload: env.Payload, Seq: env.Seq}, nil

	case KindRequest:
		if env.ID == "" {
			return nil, &ProtocolError{Reason: ReasonMissingID, Err: errors.New("request frame without id")}
		}
		if env.Method == "" {
			return nil, &ProtocolError{Reason: ReasonMissingName, Err: errors.New("request frame without method")}
		}
		return &RequestFrame{ID: env.ID, Method: env.Method, Params: env.Params}, nil

	default:
		if env.ID == "" {
			return nil, &ProtocolError{Reason: ReasonMissingID, Err: errors.New("response frame without id")}
		}
		ok := env.OK != nil && *env.OK
		return &ResponseFrame{ID: env.ID, OK: ok, Payload: env.Payload, Error: env.Error}, nil
	}
}

// classify determines the frame variant from the discriminator, falling back
// to field inspection for frames that omit it.
func classify(env *envelope) (Kind, error) {
	switch env.Type {
	case TypeEvent:
		return KindEvent, nil
	case TypeRequest:
		return KindRequest, nil
	case TypeResponse:
		return KindResponse, nil
	case "":
		switch {
		case env.Event != "":
			return KindEvent, nil
		case env.Method != "":
			return KindRequest, nil
		case env.ID != "":
			return KindResponse, nil
		}
		return 0, &ProtocolError{Reason: ReasonUnroutable, Err: errors.New("frame has no type, event, method or id")}
	default:
		return 0, &ProtocolError{Reason: ReasonUnknownType, Err: fmt.Errorf("unknown frame type %q", env.Type)}
	}
}
