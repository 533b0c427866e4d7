package config

import (
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var envVars = []string{
	"MCP_FETCH_TRANSPORT",
	"MCP_FETCH_HOST",
	"MCP_FETCH_PORT",
	"MCP_FETCH_USER_AGENT",
	"MCP_FETCH_SERVER_NAME",
	"MCP_FETCH_SERVER_VERSION",
	"MCP_FETCH_INSTRUCTIONS",
	"MCP_FETCH_REDIS_KEY_PREFIX",
	"MCP_FETCH_SSE_KEEPALIVE",
	"MCP_FETCH_CONFIG",
	"REDIS_ADDR",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("test", nil, io.Discard)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := &Config{
		Transport:      "sse",
		Host:           "0.0.0.0",
		Port:           5488,
		UserAgent:      "MCP Test Server",
		ServerName:     "mcp-website-fetcher",
		ServerVersion:  "dev",
		RedisKeyPrefix: "mcp:fetcher:broker:",
		LogLevel:       "info",
		LogFormat:      "text",
		SSEKeepAlive:   15 * time.Second,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:5488" {
		t.Fatalf("addr %q", cfg.Addr())
	}
}

func TestLayering(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_FETCH_PORT", "6000")
	t.Setenv("MCP_FETCH_USER_AGENT", "env-agent")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MCP_FETCH_INSTRUCTIONS", "from env")

	path := writeFile(t, "port: 7000\ntransport: stdio\nsse_keepalive: 2s\nredis_addr: redis:6379\ninstructions: from file\n")

	cfg, err := Load("test", []string{"--config", path, "--transport", "sse"}, io.Discard)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// file beats env
	if cfg.Port != 7000 {
		t.Errorf("port = %d, want 7000", cfg.Port)
	}
	// flag beats file
	if cfg.Transport != "sse" {
		t.Errorf("transport = %q, want sse", cfg.Transport)
	}
	// env survives when neither file nor flag set it
	if cfg.UserAgent != "env-agent" {
		t.Errorf("user agent = %q", cfg.UserAgent)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.Instructions != "from file" {
		t.Errorf("instructions = %q, want file value", cfg.Instructions)
	}
	if cfg.SSEKeepAlive != 2*time.Second || cfg.RedisAddr != "redis:6379" {
		t.Errorf("file values not applied: %+v", cfg)
	}
}

func TestFlagDefaultsDoNotOverrideFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "port: 9000\n")

	cfg, err := Load("test", []string{"-config=" + path, "-log-level=warn"}, io.Discard)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d, want 9000", cfg.Port)
	}
	lvl, err := cfg.SlogLevel()
	if err != nil || lvl != slog.LevelWarn {
		t.Fatalf("level = %v, %v", lvl, err)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load("test", []string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp, got %v", err)
	}
	if _, err := Load("test", []string{"--port", "nope"}, io.Discard); err == nil {
		t.Errorf("expected error for bad port flag")
	}
	if _, err := Load("test", []string{"extra"}, io.Discard); err == nil {
		t.Errorf("expected error for positional argument")
	}
	if _, err := Load("test", []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, io.Discard); err == nil {
		t.Errorf("expected error for missing config file")
	}
	if _, err := Load("test", []string{"--config", writeFile(t, "port: [")}, io.Discard); err == nil {
		t.Errorf("expected error for malformed config file")
	}

	t.Setenv("MCP_FETCH_PORT", "not-a-number")
	if _, err := Load("test", nil, io.Discard); err == nil {
		t.Errorf("expected error for bad MCP_FETCH_PORT")
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"stdio", func(c *Config) { c.Transport = "stdio" }, false},
		{"unknown transport", func(c *Config) { c.Transport = "websocket" }, true},
		{"port zero", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"json logs", func(c *Config) { c.LogFormat = "json" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"negative keepalive", func(c *Config) { c.SSEKeepAlive = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
