package log

import (
	"bytes"
	"testing"
	"time"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	original := Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-def6-7890-abcd-ef1234567890",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		ClientID:     "gateway-client",
		URL:          "ws://127.0.0.1:18789",
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.ConnectionID != original.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, original.ConnectionID)
	}
	if decoded.Direction != original.Direction {
		t.Errorf("Direction: got %v, want %v", decoded.Direction, original.Direction)
	}
	if decoded.Layer != original.Layer {
		t.Errorf("Layer: got %v, want %v", decoded.Layer, original.Layer)
	}
	if decoded.ClientID != original.ClientID {
		t.Errorf("ClientID: got %q, want %q", decoded.ClientID, original.ClientID)
	}
	if decoded.URL != original.URL {
		t.Errorf("URL: got %q, want %q", decoded.URL, original.URL)
	}
}

func TestMessageEventCBORRoundTrip(t *testing.T) {
	ok := false
	latency := 42 * time.Millisecond
	seq := int64(9)
	original := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Message: &MessageEvent{
			Type:         MessageTypeResponse,
			ID:           "req-1",
			Name:         "agent",
			OK:           &ok,
			Status:       "accepted",
			ErrorCode:    "INVALID_REQUEST",
			ErrorMessage: "bad params",
			Payload:      []byte(`{"status":"accepted"}`),
			Latency:      &latency,
			Seq:          &seq,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	m := decoded.Message
	if m == nil {
		t.Fatal("Message is nil")
	}
	if m.Type != MessageTypeResponse || m.ID != "req-1" || m.Name != "agent" {
		t.Errorf("Message header: got %v/%q/%q", m.Type, m.ID, m.Name)
	}
	if m.OK == nil || *m.OK {
		t.Errorf("OK: got %v, want false", m.OK)
	}
	if m.ErrorCode != "INVALID_REQUEST" || m.ErrorMessage != "bad params" {
		t.Errorf("Error: got %q/%q", m.ErrorCode, m.ErrorMessage)
	}
	if !bytes.Equal(m.Payload, original.Message.Payload) {
		t.Errorf("Payload: got %s", m.Payload)
	}
	if m.Latency == nil || *m.Latency != latency {
		t.Errorf("Latency: got %v, want %v", m.Latency, latency)
	}
	if m.Seq == nil || *m.Seq != 9 {
		t.Errorf("Seq: got %v, want 9", m.Seq)
	}
}

func TestControlAndStateCBORRoundTrip(t *testing.T) {
	code := 4000
	events := []Event{
		{
			Timestamp: time.Now(), Layer: LayerTransport, Category: CategoryControl,
			Control: &ControlEvent{Type: ControlClose, CloseCode: &code, Reason: "tick timeout"},
		},
		{
			Timestamp: time.Now(), Layer: LayerClient, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityConnection, OldState: "HANDSHAKING", NewState: "READY"},
		},
		{
			Timestamp: time.Now(), Layer: LayerWire, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerWire, Message: "protocol error (malformed)", Code: "malformed", Context: "decode"},
		},
	}

	for _, ev := range events {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		switch {
		case ev.Control != nil:
			if decoded.Control == nil || decoded.Control.CloseCode == nil || *decoded.Control.CloseCode != 4000 {
				t.Errorf("Control: got %+v", decoded.Control)
			}
		case ev.StateChange != nil:
			if decoded.StateChange == nil || decoded.StateChange.NewState != "READY" {
				t.Errorf("StateChange: got %+v", decoded.StateChange)
			}
		case ev.Error != nil:
			if decoded.Error == nil || decoded.Error.Code != "malformed" {
				t.Errorf("Error: got %+v", decoded.Error)
			}
		}
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, id := range []string{"a", "b", "c"} {
		if err := enc.Encode(Event{Timestamp: time.Now(), ConnectionID: id}); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for _, want := range []string{"a", "b", "c"} {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if ev.ConnectionID != want {
			t.Errorf("ConnectionID: got %q, want %q", ev.ConnectionID, want)
		}
	}
}
