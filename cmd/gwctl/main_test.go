package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwlink/gwlink-go/internal/gatewaytest"
	"github.com/gwlink/gwlink-go/pkg/config"
	"github.com/gwlink/gwlink-go/pkg/discovery"
	"github.com/gwlink/gwlink-go/pkg/handshake"
	plog "github.com/gwlink/gwlink-go/pkg/log"
	"github.com/gwlink/gwlink-go/pkg/version"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

func runGwctl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestGlobalFlagsOverrideOnlyWhenSet(t *testing.T) {
	flags := &globalFlags{}
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--url", "wss://gw.example:443", "--log-level", "debug"}))

	cfg := config.Default()
	cfg.Gateway.Token = "from-file"
	require.NoError(t, flags.apply(cmd, cfg))

	assert.Equal(t, "wss://gw.example:443", cfg.Gateway.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "from-file", cfg.Gateway.Token)
}

func TestGlobalFlagsRejectInvalidOverride(t *testing.T) {
	flags := &globalFlags{}
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--url", "http://gw.example"}))

	assert.Error(t, flags.apply(cmd, config.Default()))
}

func TestParseParams(t *testing.T) {
	p, err := parseParams("")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = parseParams(`{"message":"hi"}`)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`{"message":"hi"}`), p)

	_, err = parseParams(`{"message":`)
	assert.Error(t, err)
}

func TestPrintPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPayload(&buf, json.RawMessage(`{"a":1}`)))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, printPayload(&buf, nil))
	assert.Equal(t, "OK\n", buf.String())
}

func TestPrintSession(t *testing.T) {
	var buf bytes.Buffer
	printSession(&buf, "ws://gw", &handshake.Session{
		Protocol:     3,
		TickInterval: 30 * time.Second,
		InstanceID:   "inst-1",
		Server:       &wire.ServerInfo{Host: "gw-host", Version: "1.2.3", ConnID: "c-9"},
	})

	out := buf.String()
	assert.Contains(t, out, "Connected to ws://gw")
	assert.Contains(t, out, "Protocol:  3")
	assert.Contains(t, out, "Tick:      30s")
	assert.Contains(t, out, "gw-host 1.2.3 (conn c-9)")
}

func TestPrintGateways(t *testing.T) {
	var buf bytes.Buffer
	printGateways(&buf, nil)
	assert.Equal(t, "No gateways found\n", buf.String())

	buf.Reset()
	printGateways(&buf, []*discovery.Gateway{{
		InstanceName: "studio",
		Host:         "studio.local.",
		Port:         18789,
		Addresses:    []string{"192.168.1.20"},
	}})
	assert.Contains(t, buf.String(), "ws://192.168.1.20:18789")
	assert.Contains(t, buf.String(), "studio")
}

func TestServeMetrics(t *testing.T) {
	ms, err := serveMetrics("127.0.0.1:0", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer ms.stop()

	ms.metrics.ConnectAttempt()

	resp, err := http.Get("http://" + ms.addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "gwlink_connect_attempts_total 1")
}

func TestCallCommand(t *testing.T) {
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{
		Token: "secret",
		Handlers: map[string]gatewaytest.Handler{
			"health": func(_ context.Context, _ *wire.RequestFrame, r *gatewaytest.Responder) {
				_ = r.Reply(map[string]any{"ok": true, "uptime": 12})
			},
		},
	})

	out, err := runGwctl(t, "--url", srv.URL(), "--token", "secret", "--log-level", "error", "call", "health")
	require.NoError(t, err)
	assert.Contains(t, out, `"uptime": 12`)
	assert.Equal(t, []string{"health"}, srv.Methods())
}

func TestCallCommandExpectFinal(t *testing.T) {
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{
		Handlers: map[string]gatewaytest.Handler{
			"agent": func(_ context.Context, _ *wire.RequestFrame, r *gatewaytest.Responder) {
				_ = r.Accept("run-1")
				_ = r.Reply(map[string]any{"runId": "run-1", "status": "ok"})
			},
		},
	})

	out, err := runGwctl(t, "--url", srv.URL(), "call", "agent", `{"message":"hi"}`, "--expect-final")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
	assert.NotContains(t, out, "accepted")
}

func TestCallCommandGatewayError(t *testing.T) {
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{})

	_, err := runGwctl(t, "--url", srv.URL(), "call", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown method: nope")
}

func TestCallCommandInvalidParams(t *testing.T) {
	_, err := runGwctl(t, "--url", "ws://127.0.0.1:1", "call", "health", "{")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")
}

func TestConnectCommand(t *testing.T) {
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{TickInterval: time.Second})

	out, err := runGwctl(t, "--url", srv.URL(), "connect")
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to "+srv.URL())
	assert.Contains(t, out, "Tick:      1s")
	srv.WaitConnects(t, 1)
}

func TestVersionCommand(t *testing.T) {
	out, err := runGwctl(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Current())
}

func TestClientVersionDefaultsToBuild(t *testing.T) {
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{})

	_, err := runGwctl(t, "--url", srv.URL(), "connect")
	require.NoError(t, err)

	connects := srv.Connects()
	require.Len(t, connects, 1)
	assert.Equal(t, version.Current(), connects[0].Client.Version)
}

func TestProtocolLogger(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	capture, closeFn, err := protocolLogger("", false, logger)
	require.NoError(t, err)
	assert.Nil(t, capture)
	closeFn()

	capture, closeFn, err = protocolLogger("", true, logger)
	require.NoError(t, err)
	assert.IsType(t, &plog.SlogAdapter{}, capture)
	closeFn()

	path := filepath.Join(t.TempDir(), "session.glog")
	capture, closeFn, err = protocolLogger(path, true, logger)
	require.NoError(t, err)
	multi, ok := capture.(*plog.MultiLogger)
	require.True(t, ok)
	assert.Equal(t, 2, multi.Len())
	closeFn()

	_, _, err = protocolLogger(filepath.Join(t.TempDir(), "missing", "x.glog"), false, logger)
	assert.Error(t, err)
}

func TestConnectWritesProtocolLog(t *testing.T) {
	srv := gatewaytest.NewServer(t, gatewaytest.ServerOptions{})
	path := filepath.Join(t.TempDir(), "session.glog")

	_, err := runGwctl(t, "--url", srv.URL(), "--protocol-log", path, "connect")
	require.NoError(t, err)

	reader, err := plog.NewReader(path)
	require.NoError(t, err)
	defer reader.Close()
	first, err := reader.Next()
	require.NoError(t, err)
	assert.NotEmpty(t, first.ConnectionID)
}
