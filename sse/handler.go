package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/ggoodman/mcp-website-fetcher/broker"
	"github.com/ggoodman/mcp-website-fetcher/broker/memory"
	"github.com/ggoodman/mcp-website-fetcher/internal/engine"
	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
	"github.com/ggoodman/mcp-website-fetcher/internal/logctx"
	"github.com/ggoodman/mcp-website-fetcher/mcpservice"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	// ErrHandlerClosed is reported to clients that connect after Close.
	ErrHandlerClosed = errors.New("sse: handler closed")
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	sessionIDQueryParam = "session_id"
	maxPostBodySize     = 4 << 20
	cleanupTimeout      = 5 * time.Second
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections. Shape:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Handler implements the HTTP+SSE transport of the Model Context Protocol.
type Handler struct {
	mux         *http.ServeMux
	log         *slog.Logger
	eng         *engine.Engine
	broker      broker.Broker
	ssePath     string
	messagePath string
	keepAlive   time.Duration

	mu       sync.Mutex
	sessions map[string]*liveSession
	closed   bool
}

// liveSession is an entry in the session table: one open event stream.
type liveSession struct {
	sess   *engine.Session
	cancel context.CancelFunc
}

// New constructs a Handler serving srv's tools. A nil broker selects the
// in-memory broker.
func New(srv *mcpservice.Server, br broker.Broker, opts ...Option) *Handler {
	cfg := &newConfig{
		logger:      slog.Default(),
		ssePath:     DefaultSSEPath,
		messagePath: DefaultMessagePath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	log := cfg.logger
	if _, ok := log.Handler().(logctx.Handler); !ok {
		log = slog.New(logctx.Handler{Handler: log.Handler()})
	}
	if br == nil {
		br = memory.New()
	}

	h := &Handler{
		log:         log,
		eng:         engine.NewEngine(srv, engine.WithLogger(log)),
		broker:      br,
		ssePath:     cfg.ssePath,
		messagePath: cfg.messagePath,
		keepAlive:   cfg.keepAlive,
		sessions:    make(map[string]*liveSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", h.ssePath), h.handleGetSSE)
	mux.HandleFunc(fmt.Sprintf("POST %s{token}", h.messagePath), h.handlePostMessage)
	mux.HandleFunc(fmt.Sprintf("POST %s{$}", h.messagePath), h.handlePostMessage)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// ActiveSessions returns the tokens of all open streams, sorted.
func (h *Handler) ActiveSessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.sessions))
	for token := range h.sessions {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// Close cancels every open stream and rejects new ones. It does not wait for
// the streams' handlers to return; http.Server.Shutdown does that.
func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	live := make([]*liveSession, 0, len(h.sessions))
	for _, ls := range h.sessions {
		live = append(live, ls)
	}
	h.mu.Unlock()

	for _, ls := range live {
		ls.cancel()
	}
	return nil
}

func (h *Handler) lookup(token string) (*engine.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ls, ok := h.sessions[token]
	if !ok {
		return nil, false
	}
	return ls.sess, true
}

func (h *Handler) register(token string, ls *liveSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandlerClosed
	}
	h.sessions[token] = ls
	return nil
}

func (h *Handler) unregister(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, token)
}

func (h *Handler) handleGetSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log

	if r.Header.Get("Accept") != "" {
		if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
			log.InfoContext(ctx, "sse.accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
			return
		}
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	token := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := h.broker.Open(ctx, token)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to open session")
		log.ErrorContext(ctx, "sse.broker.open.fail", slog.String("err", err.Error()))
		return
	}
	defer func() {
		_ = stream.Close()
		cctx, ccancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer ccancel()
		if err := h.broker.Cleanup(cctx, token); err != nil {
			log.WarnContext(ctx, "sse.broker.cleanup.fail", slog.String("err", err.Error()))
		}
	}()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	reader := engine.MessageReaderFunc(func(ctx context.Context) (jsonrpc.Message, error) {
		env, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		return env.Data, nil
	})
	writer := engine.NewMessageWriterFunc(func(ctx context.Context, msg jsonrpc.Message) error {
		return writeSSEEvent(wf, "message", msg)
	})

	sess := h.eng.NewSession(token, reader, writer, engine.WithTransportName("sse"))
	if err := h.register(token, &liveSession{sess: sess, cancel: cancel}); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
		log.InfoContext(ctx, "sse.stream.rejected", slog.String("err", err.Error()))
		return
	}
	defer h.unregister(token)

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSEEvent(wf, "endpoint", []byte(h.messagePath+token)); err != nil {
		log.InfoContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}

	log.InfoContext(ctx, "sse.stream.start", slog.String("session_id", token))
	start := time.Now()

	var wg sync.WaitGroup
	if h.keepAlive > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.keepAliveLoop(ctx, wf)
		}()
	}

	err = sess.Run(ctx)
	cancel()
	wg.Wait()

	if err != nil {
		log.ErrorContext(ctx, "sse.stream.fail", slog.String("session_id", token), slog.String("err", err.Error()))
		return
	}
	log.InfoContext(ctx, "sse.stream.done", slog.String("session_id", token), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func (h *Handler) keepAliveLoop(ctx context.Context, wf *lockedWriteFlusher) {
	t := time.NewTicker(h.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := writeSSEComment(wf, "ping"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log

	h.log.DebugContext(ctx, "http.post.start")

	token := r.PathValue("token")
	if token == "" {
		token = r.URL.Query().Get(sessionIDQueryParam)
	}
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session token")
		log.InfoContext(ctx, "session.token.missing")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: token, Transport: "sse"})

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		log.InfoContext(ctx, "content_type.unsupported", slog.String("content_type", r.Header.Get("Content-Type")))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPostBodySize))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "message too large")
			log.InfoContext(ctx, "http.post.too_large", slog.Int64("limit", mbe.Limit))
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		log.InfoContext(ctx, "http.post.read.fail", slog.String("err", err.Error()))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are forbidden on the SSE transport")
		log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}
	if _, err := jsonrpc.Decode(trimmed); err != nil {
		if errors.Is(err, jsonrpc.ErrParse) {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			log.WarnContext(ctx, "json.decode.fail")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message: "+err.Error())
		log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	}

	eventID, err := h.broker.Publish(ctx, token, trimmed)
	if err != nil {
		if errors.Is(err, broker.ErrNoSubscriber) {
			writeJSONError(w, http.StatusNotFound, "session not found")
			log.InfoContext(ctx, "session.not_found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to deliver message")
		log.ErrorContext(ctx, "broker.publish.fail", slog.String("err", err.Error()))
		return
	}

	w.WriteHeader(http.StatusAccepted)
	log.DebugContext(ctx, "http.post.accepted", slog.String("event_id", eventID))
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and a context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one complete frame in a single Write so frames from
// concurrent writers never interleave.
func writeSSEEvent(wf *lockedWriteFlusher, event string, payload []byte) error {
	var buf bytes.Buffer
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(payload, []byte{'\n'}) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte{'\r'}))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	if _, err := wf.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	wf.Flush()
	return nil
}

func writeSSEComment(wf *lockedWriteFlusher, comment string) error {
	if _, err := wf.Write([]byte(": " + comment + "\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE comment: %w", err)
	}
	wf.Flush()
	return nil
}
