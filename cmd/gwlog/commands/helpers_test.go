package commands

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/gwlink/gwlink-go/pkg/log"
)

var testTime = time.Date(2026, 3, 2, 9, 30, 15, 250000000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.glog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}
	return path
}

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		e, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, e)
	}
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }

// sessionEvents is a small but complete capture of one connection attempt.
func sessionEvents() []log.Event {
	latency := 42 * time.Millisecond
	seq := int64(7)
	conn := "abc12345-6789-0123-4567-890abcdef012"
	return []log.Event{
		{Timestamp: testTime, ConnectionID: conn, Layer: log.LayerClient, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{Entity: log.StateEntityConnection, OldState: "DISCONNECTED", NewState: "CONNECTING"}},
		{Timestamp: testTime.Add(time.Millisecond), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryControl,
			URL: "ws://127.0.0.1:18789", Control: &log.ControlEvent{Type: log.ControlOpen}},
		{Timestamp: testTime.Add(2 * time.Millisecond), ConnectionID: conn, Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			ClientID: "gwctl", Message: &log.MessageEvent{Type: log.MessageTypeRequest, ID: "req-1", Name: "connect", Payload: []byte(`{"minProtocol":3}`)}},
		{Timestamp: testTime.Add(3 * time.Millisecond), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, ID: "req-1", OK: boolPtr(true), Status: "ok", Latency: &latency}},
		{Timestamp: testTime.Add(4 * time.Millisecond), ConnectionID: conn, Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, ID: "req-2", Name: "agent"}},
		{Timestamp: testTime.Add(5 * time.Millisecond), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, ID: "req-2", OK: boolPtr(false), ErrorCode: "busy", ErrorMessage: "agent busy"}},
		{Timestamp: testTime.Add(6 * time.Millisecond), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeEvent, Name: "tick", Seq: &seq}},
		{Timestamp: testTime.Add(7 * time.Millisecond), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerWire, Message: "invalid frame", Code: "invalid_json", Context: "decode"}},
		{Timestamp: testTime.Add(time.Second), ConnectionID: conn, Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryControl,
			Control: &log.ControlEvent{Type: log.ControlClose, CloseCode: intPtr(4000), Reason: "tick timeout"}},
	}
}
