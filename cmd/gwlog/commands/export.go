package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/gwlink/gwlink-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	var export func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		export = exportJSONL
	case "csv":
		export = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, w)
}

// jsonEvent is the JSONL rendering of an event. Payload bytes are
// emitted as raw JSON when they parse, as a string otherwise.
type jsonEvent struct {
	Timestamp    string          `json:"timestamp"`
	ConnectionID string          `json:"connectionId"`
	Direction    string          `json:"direction"`
	Layer        string          `json:"layer"`
	Category     string          `json:"category"`
	ClientID     string          `json:"clientId,omitempty"`
	URL          string          `json:"url,omitempty"`
	Type         string          `json:"type"`
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	OK           *bool           `json:"ok,omitempty"`
	Status       string          `json:"status,omitempty"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Seq          *int64          `json:"seq,omitempty"`
	Size         int             `json:"size,omitempty"`
	State        string          `json:"state,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

func rawPayload(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return json.RawMessage(data)
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

func toJSONEvent(event log.Event) jsonEvent {
	je := jsonEvent{
		Timestamp:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		ConnectionID: event.ConnectionID,
		Direction:    event.Direction.String(),
		Layer:        event.Layer.String(),
		Category:     event.Category.String(),
		ClientID:     event.ClientID,
		URL:          event.URL,
		Type:         eventType(event),
	}
	switch {
	case event.Frame != nil:
		je.Size = event.Frame.Size
		je.Payload = rawPayload(event.Frame.Data)
	case event.Message != nil:
		m := event.Message
		je.ID, je.Name, je.OK, je.Status, je.Seq = m.ID, m.Name, m.OK, m.Status, m.Seq
		je.Code, je.Message = m.ErrorCode, m.ErrorMessage
		je.Payload = rawPayload(m.Payload)
	case event.StateChange != nil:
		je.State = event.StateChange.NewState
		je.Reason = event.StateChange.Reason
	case event.Control != nil:
		je.Reason = event.Control.Reason
		if event.Control.CloseCode != nil {
			je.Code = strconv.Itoa(*event.Control.CloseCode)
		}
	case event.Error != nil:
		je.Code = event.Error.Code
		je.Message = event.Error.Message
		je.Reason = event.Error.Context
	}
	return je
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(toJSONEvent(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

// eventType returns the lowercase type column used by both exports.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "frame"
	case event.Message != nil:
		switch event.Message.Type {
		case log.MessageTypeEvent:
			return "event"
		case log.MessageTypeRequest:
			return "request"
		case log.MessageTypeResponse:
			return "response"
		}
	case event.StateChange != nil:
		return "state"
	case event.Control != nil:
		if event.Control.Type == log.ControlOpen {
			return "open"
		}
		return "close"
	case event.Error != nil:
		return "error"
	}
	return "unknown"
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "client_id", "type", "id", "name", "status"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var id, name, status string
		switch {
		case event.Message != nil:
			id, name, status = event.Message.ID, event.Message.Name, event.Message.Status
		case event.StateChange != nil:
			name, status = event.StateChange.Entity.String(), event.StateChange.NewState
		case event.Error != nil:
			name, status = event.Error.Context, event.Error.Code
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.ClientID,
			eventType(event),
			id,
			name,
			status,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
