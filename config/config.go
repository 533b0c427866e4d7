// Package config resolves process configuration for the website fetcher
// server. Values are layered: built-in defaults and environment variables,
// then an optional YAML file, then command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Config holds all configurable values for the server.
type Config struct {
	// Transport is "stdio" or "sse". ENV: MCP_FETCH_TRANSPORT
	Transport string `env:"MCP_FETCH_TRANSPORT,default=sse" yaml:"transport"`
	// Host is the SSE listen address. ENV: MCP_FETCH_HOST
	Host string `env:"MCP_FETCH_HOST,default=0.0.0.0" yaml:"host"`
	// Port is the SSE listen port. ENV: MCP_FETCH_PORT
	Port int `env:"MCP_FETCH_PORT,default=5488,strict" yaml:"port"`
	// UserAgent is sent with every outbound fetch. ENV: MCP_FETCH_USER_AGENT
	UserAgent string `env:"MCP_FETCH_USER_AGENT,default=MCP Test Server" yaml:"user_agent"`

	ServerName    string `env:"MCP_FETCH_SERVER_NAME,default=mcp-website-fetcher" yaml:"server_name"`
	ServerVersion string `env:"MCP_FETCH_SERVER_VERSION,default=dev" yaml:"server_version"`
	// Instructions are returned to clients from initialize. ENV: MCP_FETCH_INSTRUCTIONS
	Instructions string `env:"MCP_FETCH_INSTRUCTIONS" yaml:"instructions"`

	// RedisAddr like "localhost:6379" selects the Redis broker for the SSE
	// transport. Empty keeps everything in memory. ENV: REDIS_ADDR
	RedisAddr      string `env:"REDIS_ADDR" yaml:"redis_addr"`
	RedisKeyPrefix string `env:"MCP_FETCH_REDIS_KEY_PREFIX,default=mcp:fetcher:broker:" yaml:"redis_key_prefix"`

	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info" yaml:"log_level"`
	// LogFormat is "text" or "json". ENV: LOG_FORMAT
	LogFormat string `env:"LOG_FORMAT,default=text" yaml:"log_format"`

	// SSEKeepAlive is the interval between keep-alive comments on open SSE
	// streams. Zero disables them. ENV: MCP_FETCH_SSE_KEEPALIVE
	SSEKeepAlive time.Duration `env:"MCP_FETCH_SSE_KEEPALIVE,default=15s,strict" yaml:"sse_keepalive"`
}

// Addr is the SSE listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FromEnv returns the defaults overlaid with any environment variables.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file leave c unchanged.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration for a process named name invoked with
// args (excluding the program name). It returns flag.ErrHelp when -h or
// -help was requested.
func Load(name string, args []string, output io.Writer) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	var (
		configPath string
		flagged    Config
	)
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}
	fs.StringVar(&configPath, "config", os.Getenv("MCP_FETCH_CONFIG"), "Path to a YAML config file")
	fs.StringVar(&flagged.Transport, "transport", cfg.Transport, "Transport protocol (stdio or sse)")
	fs.IntVar(&flagged.Port, "port", cfg.Port, "Port for the SSE transport")
	fs.StringVar(&flagged.Host, "host", cfg.Host, "Listen host for the SSE transport")
	fs.StringVar(&flagged.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header for outbound fetches")
	fs.StringVar(&flagged.Instructions, "instructions", cfg.Instructions, "Instructions returned to clients during initialize")
	fs.StringVar(&flagged.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the SSE message broker (empty for in-memory)")
	fs.StringVar(&flagged.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&flagged.LogFormat, "log-format", cfg.LogFormat, "Log format (text or json)")
	fs.DurationVar(&flagged.SSEKeepAlive, "sse-keepalive", cfg.SSEKeepAlive, "Interval between SSE keep-alive comments (0 disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	// Only flags given explicitly override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = flagged.Transport
		case "port":
			cfg.Port = flagged.Port
		case "host":
			cfg.Host = flagged.Host
		case "user-agent":
			cfg.UserAgent = flagged.UserAgent
		case "instructions":
			cfg.Instructions = flagged.Instructions
		case "redis-addr":
			cfg.RedisAddr = flagged.RedisAddr
		case "log-level":
			cfg.LogLevel = flagged.LogLevel
		case "log-format":
			cfg.LogFormat = flagged.LogFormat
		case "sse-keepalive":
			cfg.SSEKeepAlive = flagged.SSEKeepAlive
		}
	})

	return cfg, nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if c.Transport != TransportStdio && c.Transport != TransportSSE {
		return fmt.Errorf("transport must be '%s' or '%s', got %q", TransportStdio, TransportSSE, c.Transport)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got %q", c.LogFormat)
	}
	if c.SSEKeepAlive < 0 {
		return fmt.Errorf("sse keep-alive must not be negative")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// NewLogHandler builds the slog handler described by LogFormat and LogLevel.
// Validate must have succeeded.
func (c *Config) NewLogHandler(w io.Writer) slog.Handler {
	lvl, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: lvl}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
