package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/gwlink/gwlink-go/pkg/agent"
	"github.com/gwlink/gwlink-go/pkg/gateway"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

func newChatCommand(flags *globalFlags) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive agent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "gw> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			// Logs and events go through readline so they do not clobber the prompt.
			cmd.SetErr(rl.Stderr())
			c := &chat{out: rl.Stdout(), opts: opts}

			s, err := flags.open(cmd, c.onEvent)
			if err != nil {
				return err
			}
			defer s.Close()

			c.client = s.client
			c.logger = s.logger
			c.run(cmd.Context(), rl)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.sessionKey, "session", "", "Agent session key")
	cmd.Flags().StringVar(&opts.thinking, "thinking", "", "Thinking level passed to the agent")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Per-turn agent timeout (0 lets the gateway decide)")
	cmd.Flags().BoolVar(&opts.events, "events", false, "Print gateway events while chatting")
	return cmd
}

type chatOptions struct {
	sessionKey string
	thinking   string
	timeout    time.Duration
	events     bool
}

// chat is the interactive loop. Lines starting with "/" are commands,
// everything else is sent to the agent.
type chat struct {
	client *gateway.Client
	logger *slog.Logger
	out    io.Writer
	opts   chatOptions
}

func (c *chat) onEvent(ev *wire.EventFrame) {
	if c.opts.events {
		printEvent(c.out, ev)
	}
}

func (c *chat) run(ctx context.Context, rl *readline.Instance) {
	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !strings.HasPrefix(input, "/") {
			c.ask(ctx, input)
			continue
		}

		parts := strings.Fields(input)
		switch strings.ToLower(parts[0]) {
		case "/help", "/?":
			c.printHelp()
		case "/status":
			printSession(c.out, "gateway", c.client.Session())
			printStats(c.out, c.client.Stats())
		case "/session":
			if len(parts) > 1 {
				c.opts.sessionKey = parts[1]
			}
			fmt.Fprintf(c.out, "Session: %q\n", c.opts.sessionKey)
		case "/events":
			c.opts.events = !c.opts.events
			fmt.Fprintf(c.out, "Events: %t\n", c.opts.events)
		case "/quit", "/exit", "/q":
			fmt.Fprintln(c.out, "Exiting...")
			return
		default:
			fmt.Fprintf(c.out, "Unknown command: %s (type /help for commands)\n", parts[0])
		}
	}
}

func (c *chat) ask(ctx context.Context, message string) {
	reply, err := agent.Ask(ctx, c.client, agent.Request{
		Message:    message,
		SessionKey: c.opts.sessionKey,
		Thinking:   c.opts.thinking,
		Timeout:    c.opts.timeout,
	})

	var runErr *agent.RunError
	switch {
	case errors.As(err, &runErr):
		fmt.Fprintf(c.out, "Agent run %s failed: %s\n", runErr.RunID, runErr.Summary)
	case err != nil:
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	err = agent.Forward(ctx, reply, func(_ context.Context, seg agent.Segment) error {
		if seg.Text != "" {
			fmt.Fprintln(c.out, seg.Text)
		}
		if seg.MediaURL != "" {
			fmt.Fprintf(c.out, "[media] %s\n", seg.MediaURL)
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("forward interrupted", "error", err)
	}
	c.logger.Debug("agent turn complete", "runId", reply.RunID, "latency", reply.Latency)
}

func (c *chat) printHelp() {
	fmt.Fprintln(c.out, `
Type a message to send it to the agent.

Commands:
  /status         - Show session and connection statistics
  /session [key]  - Show or set the agent session key
  /events         - Toggle printing of gateway events
  /help           - Show this help
  /quit           - Exit`)
}
