package log

import (
	"time"

	"github.com/gwlink/gwlink-go/pkg/wire"
)

// MaxCaptureDataSize bounds the bytes kept per frame or payload.
const MaxCaptureDataSize = 4096

// truncate returns at most MaxCaptureDataSize bytes of data.
func truncate(data []byte) ([]byte, bool) {
	if len(data) > MaxCaptureDataSize {
		return data[:MaxCaptureDataSize], true
	}
	return data, false
}

// NewFrameEvent builds a transport-layer event for one raw text frame.
func NewFrameEvent(connID string, dir Direction, data []byte) Event {
	kept, truncated := truncate(data)
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		Frame: &FrameEvent{
			Size:      len(data),
			Data:      kept,
			Truncated: truncated,
		},
	}
}

// NewMessageEvent builds a wire-layer event for a decoded frame.
func NewMessageEvent(connID string, dir Direction, f wire.Frame) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Message:      MessageFromFrame(f),
	}
}

// MessageFromFrame summarizes a frame for capture.
func MessageFromFrame(f wire.Frame) *MessageEvent {
	switch fr := f.(type) {
	case *wire.EventFrame:
		payload, _ := truncate(fr.Payload)
		return &MessageEvent{Type: MessageTypeEvent, Name: fr.Event, Payload: payload, Seq: fr.Seq}
	case *wire.RequestFrame:
		payload, _ := truncate(fr.Params)
		return &MessageEvent{Type: MessageTypeRequest, ID: fr.ID, Name: fr.Method, Payload: payload}
	case *wire.ResponseFrame:
		ok := fr.OK
		payload, _ := truncate(fr.Payload)
		m := &MessageEvent{Type: MessageTypeResponse, ID: fr.ID, OK: &ok, Status: fr.Status(), Payload: payload}
		if !fr.OK {
			m.ErrorMessage = fr.ErrorMessage()
			if fr.Error != nil {
				m.ErrorCode = fr.Error.Code
			}
		}
		return m
	default:
		return nil
	}
}

// NewStateEvent builds a client-layer state change event.
func NewStateEvent(connID string, entity StateEntity, oldState, newState, reason string) Event {
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Layer:        LayerClient,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	}
}

// NewErrorEvent builds an error event at layer.
func NewErrorEvent(connID string, layer Layer, err error, code, context string) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    DirectionIn,
		Layer:        layer,
		Category:     CategoryError,
		Error: &ErrorEventData{
			Layer:   layer,
			Message: msg,
			Code:    code,
			Context: context,
		},
	}
}
