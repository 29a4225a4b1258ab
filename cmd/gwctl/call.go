package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/gwlink/gwlink-go/pkg/gateway"
)

func newCallCommand(flags *globalFlags) *cobra.Command {
	var (
		expectFinal bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Send one request and print the payload",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 2 {
				raw = args[1]
			}
			params, err := parseParams(raw)
			if err != nil {
				return err
			}

			s, err := flags.open(cmd, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			var opts []gateway.CallOption
			if expectFinal {
				opts = append(opts, gateway.ExpectFinal())
			}
			if timeout > 0 {
				opts = append(opts, gateway.WithTimeout(timeout))
			}

			s.logger.Debug("sending request", "method", args[0], "expectFinal", expectFinal)
			payload, err := s.client.Request(cmd.Context(), args[0], params, opts...)
			if err != nil {
				return err
			}
			return printPayload(cmd.OutOrStdout(), payload)
		},
	}
	cmd.Flags().BoolVar(&expectFinal, "expect-final", false, "Wait past an accepted acknowledgement for the final response")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Fail the request after this long (0 uses the configured default)")
	return cmd
}

// parseParams validates the optional JSON argument. An empty argument
// yields a nil interface so no params are sent.
func parseParams(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("params: invalid JSON: %s", raw)
	}
	return json.RawMessage(raw), nil
}

func printPayload(w io.Writer, payload json.RawMessage) error {
	if len(payload) == 0 {
		_, err := fmt.Fprintln(w, "OK")
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
