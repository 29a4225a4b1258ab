package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gwlink/gwlink-go/pkg/config"
	"github.com/gwlink/gwlink-go/pkg/discovery"
	"github.com/gwlink/gwlink-go/pkg/gateway"
	plog "github.com/gwlink/gwlink-go/pkg/log"
	"github.com/gwlink/gwlink-go/pkg/metrics"
	"github.com/gwlink/gwlink-go/pkg/version"
	"github.com/gwlink/gwlink-go/pkg/wire"
)

// globalFlags are shared by every subcommand. String flags only override
// the configuration when set on the command line.
type globalFlags struct {
	configFile  string
	url         string
	token       string
	logLevel    string
	protocolLog string
	metricsAddr string
	discover    bool
	trace       bool
	timeout     time.Duration
}

func (g *globalFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.configFile, "config", "", "Configuration file path")
	f.StringVar(&g.url, "url", "", "Gateway URL (ws:// or wss://)")
	f.StringVar(&g.token, "token", "", "Gateway auth token")
	f.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&g.protocolLog, "protocol-log", "", "Write a protocol capture to this file")
	f.StringVar(&g.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&g.discover, "discover", false, "Connect to the first gateway found via mDNS")
	f.BoolVar(&g.trace, "trace", false, "Mirror protocol events to the log output")
	f.DurationVar(&g.timeout, "connect-timeout", 15*time.Second, "How long to wait for the connection to become ready")
}

// apply merges command-line overrides into cfg and revalidates it.
func (g *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Gateway.URL = g.url
	}
	if flags.Changed("token") {
		cfg.Gateway.Token = g.token
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if flags.Changed("protocol-log") {
		cfg.Logging.ProtocolLog = g.protocolLog
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Listen = g.metricsAddr
	}
	return cfg.Validate()
}

// session is a started client plus the resources that outlive it.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *gateway.Client
	closers []func()
}

// Close stops the client and releases capture files and listeners.
func (s *session) Close() {
	s.client.Stop()
	<-s.client.Done()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newLogger(w io.Writer, cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig reads the configuration file, applies flags and returns the
// result along with a logger at the configured level.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := g.apply(cmd, cfg); err != nil {
		return nil, nil, err
	}
	if cfg.Client.Version == "" {
		cfg.Client.Version = version.Current()
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// open builds and starts a client. onEvent may be nil.
func (g *globalFlags) open(cmd *cobra.Command, onEvent func(*wire.EventFrame)) (*session, error) {
	cfg, logger, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger}

	if g.discover {
		gw, err := discoverGateway(cmd.Context(), logger)
		if err != nil {
			return nil, err
		}
		cfg.Gateway.URL = gw.URL()
		logger.Info("using discovered gateway", "name", gw.Name(), "url", cfg.Gateway.URL)
	}

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	clientCfg.Logger = logger
	clientCfg.OnEvent = onEvent

	capture, closeCapture, err := protocolLogger(cfg.Logging.ProtocolLog, g.trace, logger)
	if err != nil {
		return nil, err
	}
	clientCfg.ProtocolLogger = capture
	s.closers = append(s.closers, closeCapture)

	if addr := cfg.Metrics.Listen; addr != "" {
		ms, err := serveMetrics(addr, logger)
		if err != nil {
			s.closeAll()
			return nil, err
		}
		clientCfg.Metrics = ms.metrics
		s.closers = append(s.closers, ms.stop)
	}

	client, err := gateway.New(clientCfg)
	if err != nil {
		s.closeAll()
		return nil, err
	}
	s.client = client
	client.Start()

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	if err := client.EnsureReady(ctx); err != nil {
		s.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("gateway at %s not ready after %s (last error: %v)", cfg.Gateway.URL, g.timeout, client.Stats().LastError)
		}
		return nil, err
	}
	return s, nil
}

// protocolLogger combines the capture file at path with an slog mirror
// when trace is set. It returns nil when neither is enabled.
func protocolLogger(path string, trace bool, logger *slog.Logger) (plog.Logger, func(), error) {
	var sinks []plog.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := plog.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() { _ = fl.Close() }
		logger.Info("protocol capture enabled", "path", path)
	}
	if trace {
		sinks = append(sinks, plog.NewSlogAdapter(logger).WithLevel(slog.LevelInfo))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return plog.NewMultiLogger(sinks...), closeFn, nil
	}
}

func (s *session) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// metricsServer exposes client metrics over HTTP.
type metricsServer struct {
	metrics *metrics.Metrics
	addr    string
	srv     *http.Server
}

// serveMetrics registers client metrics on a fresh registry and serves
// them on addr until stop is called.
func serveMetrics(addr string, logger *slog.Logger) (*metricsServer, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	ms := &metricsServer{
		metrics: metrics.New(reg),
		addr:    ln.Addr().String(),
		srv:     &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}

	go func() {
		if err := ms.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ms.addr)
	return ms, nil
}

func (ms *metricsServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = ms.srv.Shutdown(ctx)
}

func discoverGateway(ctx context.Context, logger *slog.Logger) (*discovery.Gateway, error) {
	browser := discovery.NewBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	logger.Info("browsing for gateways", "service", discovery.ServiceType)
	gw, err := browser.FindFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	return gw, nil
}
