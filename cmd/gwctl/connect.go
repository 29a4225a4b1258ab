package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gwlink/gwlink-go/pkg/gateway"
	"github.com/gwlink/gwlink-go/pkg/handshake"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

func newConnectCommand(flags *globalFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect and print the negotiated session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var onEvent func(*wire.EventFrame)
			if watch {
				onEvent = func(ev *wire.EventFrame) { printEvent(out, ev) }
			}

			s, err := flags.open(cmd, onEvent)
			if err != nil {
				return err
			}
			defer s.Close()

			printSession(out, s.cfg.Gateway.URL, s.client.Session())
			if !watch {
				return nil
			}

			fmt.Fprintln(out, "Watching events, press Ctrl-C to stop.")
			<-cmd.Context().Done()
			printStats(out, s.client.Stats())
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep the connection open and print gateway events")
	return cmd
}

func printSession(w io.Writer, url string, sess *handshake.Session) {
	fmt.Fprintf(w, "Connected to %s\n", url)
	if sess == nil {
		return
	}
	fmt.Fprintf(w, "  Protocol:  %d\n", sess.Protocol)
	fmt.Fprintf(w, "  Tick:      %s\n", sess.TickInterval)
	fmt.Fprintf(w, "  Instance:  %s\n", sess.InstanceID)
	if sess.Server != nil {
		fmt.Fprintf(w, "  Server:    %s %s (conn %s)\n", sess.Server.Host, sess.Server.Version, sess.Server.ConnID)
	}
	if sess.Policy != nil && sess.Policy.MaxPayload > 0 {
		fmt.Fprintf(w, "  MaxPayload: %d bytes\n", sess.Policy.MaxPayload)
	}
}

func printEvent(w io.Writer, ev *wire.EventFrame) {
	ts := time.Now().Format("15:04:05.000")
	if ev.Seq != nil {
		fmt.Fprintf(w, "%s [%d] %s %s\n", ts, *ev.Seq, ev.Event, string(ev.Payload))
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", ts, ev.Event, string(ev.Payload))
}

func printStats(w io.Writer, st gateway.Stats) {
	fmt.Fprintf(w, "\nState: %s  Attempts: %d  Pending: %d  Ticks: %d\n", st.State, st.Attempts, st.Pending, st.Ticks)
	if st.LastError != nil {
		fmt.Fprintf(w, "Last error: %v\n", st.LastError)
	}
}
