package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
	"github.com/ggoodman/mcp-website-fetcher/internal/logctx"
	"github.com/ggoodman/mcp-website-fetcher/mcp"
)

// SessionState is the lifecycle position of a Session.
type SessionState string

const (
	SessionStateCreated     SessionState = "created"
	SessionStateInitialized SessionState = "initialized"
	SessionStateRunning     SessionState = "running"
	SessionStateClosed      SessionState = "closed"
)

// Session is one protocol conversation over a single channel pair. Messages
// are handled one at a time in arrival order.
type Session struct {
	id        string
	transport string
	eng       *Engine
	r         MessageReader
	w         MessageWriter

	mu              sync.Mutex
	state           SessionState
	protocolVersion string
	clientInfo      mcp.ImplementationInfo
	done            chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTransportName labels the session in logs, e.g. "stdio" or "sse".
func WithTransportName(name string) SessionOption {
	return func(s *Session) { s.transport = name }
}

// NewSession binds a channel pair to the engine. The session stays in the
// created state until Run is called.
func (e *Engine) NewSession(id string, r MessageReader, w MessageWriter, opts ...SessionOption) *Session {
	s := &Session{
		id:    id,
		eng:   e,
		r:     r,
		w:     w,
		state: SessionStateCreated,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProtocolVersion is the negotiated version, empty before initialize.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// ClientInfo is the implementation info the client sent in initialize.
func (s *Session) ClientInfo() mcp.ImplementationInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientInfo
}

// Done is closed once the session reaches the closed state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setState(ctx context.Context, st SessionState) {
	s.mu.Lock()
	prev := s.state
	if prev == SessionStateClosed {
		s.mu.Unlock()
		return
	}
	s.state = st
	if st == SessionStateClosed {
		close(s.done)
	}
	s.mu.Unlock()

	s.eng.log.DebugContext(ctx, "engine.session.state", slog.String("from", string(prev)), slog.String("to", string(st)))
}

// Run drives the session until the inbound stream ends or ctx is done. A
// clean end of stream or cancellation yields nil; read and write failures
// are returned. The session is closed when Run returns.
func (s *Session) Run(ctx context.Context) error {
	if st := s.State(); st != SessionStateCreated {
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotRunnable, s.id, st)
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: s.id, Transport: s.transport})
	start := time.Now()
	log := s.eng.log

	s.setState(ctx, SessionStateInitialized)
	log.InfoContext(ctx, "engine.session.start")
	s.setState(ctx, SessionStateRunning)

	defer func() {
		s.setState(ctx, SessionStateClosed)
		log.InfoContext(ctx, "engine.session.closed", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}()

	for {
		msg, err := s.r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			log.ErrorContext(ctx, "engine.session.read.fail", slog.String("err", err.Error()))
			return fmt.Errorf("read message: %w", err)
		}

		res := s.handleMessage(ctx, msg)
		if res == nil {
			continue
		}

		b, err := json.Marshal(res)
		if err != nil {
			log.ErrorContext(ctx, "engine.session.encode.fail", slog.String("err", err.Error()))
			b, _ = json.Marshal(jsonrpc.NewErrorResponse(res.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil))
		}
		if err := s.w.WriteMessage(ctx, b); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.ErrorContext(ctx, "engine.session.write.fail", slog.String("err", err.Error()))
			return fmt.Errorf("write message: %w", err)
		}
	}
}

// handleMessage returns the response to send, or nil when none is due.
func (s *Session) handleMessage(ctx context.Context, raw jsonrpc.Message) *jsonrpc.Response {
	log := s.eng.log

	msg, err := jsonrpc.Decode(raw)
	if err != nil {
		if errors.Is(err, jsonrpc.ErrParse) {
			log.InfoContext(ctx, "engine.session.message.parse_error")
			return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil)
		}
		log.InfoContext(ctx, "engine.session.message.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil)
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	switch msg.Type() {
	case "request":
		res, err := s.eng.HandleRequest(ctx, s, msg.AsRequest())
		if err != nil {
			log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
		return res
	case "notification":
		s.eng.HandleNotification(ctx, s, msg.AsRequest())
		return nil
	default:
		// The server never issues requests, so any response is unsolicited.
		log.DebugContext(ctx, "engine.session.response.ignored")
		return nil
	}
}

func (s *Session) initialized(protocolVersion string, client mcp.ImplementationInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolVersion = protocolVersion
	s.clientInfo = client
}
