// Package config loads gwlink settings from YAML with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gwlink/gwlink-go/pkg/connection"
	"github.com/gwlink/gwlink-go/pkg/gateway"
	"github.com/gwlink/gwlink-go/pkg/handshake"
	"github.com/gwlink/gwlink-go/pkg/transport"
)

// Environment variables that override file settings.
const (
	EnvURL      = "GWLINK_URL"
	EnvToken    = "GWLINK_TOKEN"
	EnvLogLevel = "GWLINK_LOG_LEVEL"
)

// DefaultURL is the local gateway endpoint.
const DefaultURL = "ws://127.0.0.1:18789"

// Config is the complete gwlink configuration.
type Config struct {
	Gateway GatewayConfig  `yaml:"gateway"`
	Client  IdentityConfig `yaml:"client"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// GatewayConfig describes the connection.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	// Durations are written as strings, e.g. "750ms".
	ChallengeTimeout time.Duration `yaml:"challengeTimeout"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`

	Backoff connection.BackoffConfig `yaml:"backoff"`
	TLS     transport.TLSConfig      `yaml:"tls"`
}

// IdentityConfig is announced to the gateway during connect. The instance
// id is generated per attempt and cannot be configured.
type IdentityConfig struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"displayName"`
	Version     string   `yaml:"version"`
	Platform    string   `yaml:"platform"`
	Mode        string   `yaml:"mode"`
	Role        string   `yaml:"role"`
	Scopes      []string `yaml:"scopes"`
	Caps        []string `yaml:"caps"`
}

// LoggingConfig controls operational logs and protocol capture.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// ProtocolLog is the path of a capture file. Empty disables capture.
	ProtocolLog string `yaml:"protocolLog"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the address to serve /metrics on. Empty disables it.
	Listen string `yaml:"listen"`
}

// LoadError reports a configuration file that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return "config: " + msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:              DefaultURL,
			ChallengeTimeout: gateway.DefaultChallengeTimeout,
			Backoff: connection.BackoffConfig{
				Initial: connection.InitialBackoff,
				Max:     connection.MaxBackoff,
			},
		},
		Client: IdentityConfig{
			ID:   handshake.DefaultClientID,
			Mode: handshake.DefaultMode,
			Role: handshake.DefaultRole,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
		}
		if err := cfg.parse(data); err != nil {
			return nil, &LoadError{File: path, Message: "failed to parse YAML", Cause: err}
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{File: path, Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.parse(data); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides settings from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		c.Gateway.URL = v
	}
	if v, ok := lookup(EnvToken); ok && v != "" {
		c.Gateway.Token = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Gateway.URL)
	switch {
	case c.Gateway.URL == "":
		errs = append(errs, errors.New("gateway.url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("gateway.url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("gateway.url: scheme must be ws or wss, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("gateway.url: missing host"))
	}

	if c.Gateway.ChallengeTimeout < 0 {
		errs = append(errs, errors.New("gateway.challengeTimeout must not be negative"))
	}
	if c.Gateway.RequestTimeout < 0 {
		errs = append(errs, errors.New("gateway.requestTimeout must not be negative"))
	}
	b := c.Gateway.Backoff
	if b.Initial < 0 || b.Max < 0 {
		errs = append(errs, errors.New("gateway.backoff delays must not be negative"))
	}
	if b.Initial > 0 && b.Max > 0 && b.Max < b.Initial {
		errs = append(errs, errors.New("gateway.backoff.max must not be below initial"))
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		errs = append(errs, errors.New("gateway.backoff.jitter must be within 0..1"))
	}
	if (c.Gateway.TLS.CertFile == "") != (c.Gateway.TLS.KeyFile == "") {
		errs = append(errs, errors.New("gateway.tls: certFile and keyFile must be set together"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	return ParseLevel(c.Logging.Level)
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level: unknown level %q", s)
	}
}

// ClientConfig converts the configuration into a gateway.Config. Logger,
// protocol logger, metrics and event handler are left for the caller.
func (c *Config) ClientConfig() (gateway.Config, error) {
	tlsConfig, err := transport.NewClientTLSConfig(&c.Gateway.TLS)
	if err != nil {
		return gateway.Config{}, err
	}

	return gateway.Config{
		URL:    c.Gateway.URL,
		Dialer: &transport.WebSocketDialer{TLSConfig: tlsConfig},
		Handshake: handshake.Options{
			ClientID:    c.Client.ID,
			DisplayName: c.Client.DisplayName,
			Version:     c.Client.Version,
			Platform:    c.Client.Platform,
			Mode:        c.Client.Mode,
			Caps:        c.Client.Caps,
			Token:       c.Gateway.Token,
			Role:        c.Client.Role,
			Scopes:      c.Client.Scopes,
		},
		ChallengeTimeout: c.Gateway.ChallengeTimeout,
		RequestTimeout:   c.Gateway.RequestTimeout,
		Backoff:          c.Gateway.Backoff,
	}, nil
}
