package sse

import (
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultSSEPath     = "/sse"
	DefaultMessagePath = "/messages/"
)

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger      *slog.Logger
	ssePath     string
	messagePath string
	keepAlive   time.Duration
}

// WithLogger sets the logger used by the handler and its sessions.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSSEPath sets the path that opens the event stream.
func WithSSEPath(p string) Option {
	return func(c *newConfig) {
		if p = strings.TrimSpace(p); p != "" {
			c.ssePath = p
		}
	}
}

// WithMessagePath sets the path prefix clients POST messages to. A trailing
// slash is added when missing.
func WithMessagePath(p string) Option {
	return func(c *newConfig) {
		if p = strings.TrimSpace(p); p != "" {
			if !strings.HasSuffix(p, "/") {
				p += "/"
			}
			c.messagePath = p
		}
	}
}

// WithKeepAlive emits an SSE comment on every open stream at the given
// interval. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(c *newConfig) {
		if d >= 0 {
			c.keepAlive = d
		}
	}
}
