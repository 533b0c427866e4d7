package mcpservice

import (
	"github.com/ggoodman/mcp-website-fetcher/mcp"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server is the static description a session advertises during initialize
// plus the tool registry it dispatches to.
type Server struct {
	info             mcp.ImplementationInfo
	instructions     string
	preferredVersion string
	tools            *Registry
}

// NewServer builds a Server around tools.
func NewServer(tools *Registry, opts ...ServerOption) *Server {
	s := &Server{
		info:  mcp.ImplementationInfo{Name: "mcp-website-fetcher", Version: "dev"},
		tools: tools,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets human-readable instructions returned from initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithPreferredProtocolVersion pins the version answered to every client,
// bypassing negotiation.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *Server) { s.preferredVersion = version }
}

func (s *Server) ServerInfo() mcp.ImplementationInfo { return s.info }
func (s *Server) Instructions() string               { return s.instructions }
func (s *Server) Tools() *Registry                   { return s.tools }

// ProtocolVersion returns the version to answer a client that requested
// requested.
func (s *Server) ProtocolVersion(requested string) string {
	if s.preferredVersion != "" {
		return s.preferredVersion
	}
	return mcp.NegotiateProtocolVersion(requested)
}
