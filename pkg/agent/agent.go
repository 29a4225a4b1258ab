// Package agent issues "agent" runs through a gateway client and collects
// their final replies.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gwlink/gwlink-go/pkg/gateway"
)

// Method is the gateway method that starts an agent run.
const Method = "agent"

// Run statuses reported in the final reply.
const (
	StatusOK       = "ok"
	StatusAccepted = "accepted"
)

// Client is the part of *gateway.Client that Ask needs.
type Client interface {
	EnsureReady(ctx context.Context) error
	Request(ctx context.Context, method string, params any, opts ...gateway.CallOption) (json.RawMessage, error)
}

// Request describes one agent run.
type Request struct {
	// Message is the user input.
	Message string

	// SessionKey selects the conversation on the gateway.
	SessionKey string

	// Thinking is the optional reasoning level, e.g. "low".
	Thinking string

	// Deliver asks the gateway to deliver the reply to Channel itself.
	Deliver bool
	Channel string

	// Timeout is the run timeout enforced by the gateway. It is also used as
	// the local request deadline, with a grace period.
	Timeout time.Duration

	// IdempotencyKey deduplicates retries. Generated when empty.
	IdempotencyKey string
}

// Segment is one piece of a reply.
type Segment struct {
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Reply is the final result of an agent run.
type Reply struct {
	RunID    string
	Status   string
	Summary  string
	Segments []Segment
	Latency  time.Duration
}

// Text joins the text of all segments with blank lines.
func (r *Reply) Text() string {
	var parts []string
	for _, s := range r.Segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// RunError reports a run that finished with a non-ok status.
type RunError struct {
	RunID   string
	Status  string
	Summary string
}

func (e *RunError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("agent run %s %s: %s", e.RunID, e.Status, e.Summary)
	}
	return fmt.Sprintf("agent run %s %s", e.RunID, e.Status)
}

// timeoutGrace is added to Request.Timeout for the local deadline.
const timeoutGrace = 10 * time.Second

type params struct {
	Message        string `json:"message"`
	SessionKey     string `json:"sessionKey,omitempty"`
	Thinking       string `json:"thinking,omitempty"`
	Deliver        bool   `json:"deliver"`
	Channel        string `json:"channel,omitempty"`
	Timeout        int64  `json:"timeout,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type finalPayload struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Result  *struct {
		Payloads []Segment `json:"payloads"`
	} `json:"result"`
}

// Ask waits for c to be ready, starts an agent run and waits for its final
// reply. Interim "accepted" acknowledgements are skipped.
func Ask(ctx context.Context, c Client, req Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("agent: empty message")
	}
	if err := c.EnsureReady(ctx); err != nil {
		return nil, err
	}

	p := params{
		Message:        req.Message,
		SessionKey:     req.SessionKey,
		Thinking:       req.Thinking,
		Deliver:        req.Deliver,
		Channel:        req.Channel,
		IdempotencyKey: req.IdempotencyKey,
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = uuid.New().String()
	}
	opts := []gateway.CallOption{gateway.ExpectFinal()}
	if req.Timeout > 0 {
		p.Timeout = int64(req.Timeout / time.Second)
		opts = append(opts, gateway.WithTimeout(req.Timeout+timeoutGrace))
	}

	start := time.Now()
	raw, err := c.Request(ctx, Method, p, opts...)
	if err != nil {
		return nil, err
	}
	return parseReply(raw, time.Since(start))
}

func parseReply(raw json.RawMessage, latency time.Duration) (*Reply, error) {
	var fp finalPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fp); err != nil {
			return nil, fmt.Errorf("decode agent reply: %w", err)
		}
	}

	reply := &Reply{
		RunID:   fp.RunID,
		Status:  fp.Status,
		Summary: fp.Summary,
		Latency: latency,
	}
	if fp.Result != nil {
		reply.Segments = fp.Result.Payloads
	}
	switch fp.Status {
	case "", StatusOK:
		return reply, nil
	default:
		return reply, &RunError{RunID: fp.RunID, Status: fp.Status, Summary: fp.Summary}
	}
}

// Forward passes each non-empty segment of reply to notify in order. It
// stops at the first error or when ctx ends.
func Forward(ctx context.Context, reply *Reply, notify func(context.Context, Segment) error) error {
	for _, seg := range reply.Segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(seg.Text) == "" && seg.MediaURL == "" {
			continue
		}
		if err := notify(ctx, seg); err != nil {
			return fmt.Errorf("forward segment: %w", err)
		}
	}
	return nil
}

var _ Client = (*gateway.Client)(nil)
