package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-website-fetcher/internal/engine"
	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
	"github.com/ggoodman/mcp-website-fetcher/mcpservice"
)

const defaultMaxMessageSize = 4 << 20

// ErrMessageTooLarge is returned by Serve when an inbound line exceeds the
// configured maximum size.
var ErrMessageTooLarge = errors.New("stdio: message too large")

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
type Handler struct {
	eng            *engine.Engine
	r              io.Reader
	w              io.Writer
	l              *slog.Logger
	maxMessageSize int

	once sync.Once
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv *mcpservice.Server, opts ...Option) *Handler {
	h := &Handler{
		r:              os.Stdin,
		w:              os.Stdout,
		l:              slog.Default(),
		maxMessageSize: defaultMaxMessageSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.eng = engine.NewEngine(srv, engine.WithLogger(h.l))
	return h
}

// Serve runs one session until EOF on the reader or until ctx is canceled,
// both of which return nil. It may be called at most once per Handler.
func (h *Handler) Serve(ctx context.Context) error {
	first := false
	h.once.Do(func() { first = true })
	if !first {
		return fmt.Errorf("stdio: Serve called more than once")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lr := newLineReader(ctx, h.r, h.maxMessageSize)
	lw := &lineWriter{w: h.w}

	sess := h.eng.NewSession(uuid.NewString(), lr, lw, engine.WithTransportName("stdio"))
	h.l.InfoContext(ctx, "stdio.serve.start", slog.String("session_id", sess.ID()))

	err := sess.Run(ctx)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.serve.fail", slog.String("err", err.Error()))
		return err
	}
	h.l.InfoContext(ctx, "stdio.serve.done")
	return nil
}

type lineResult struct {
	line []byte
	err  error
}

// lineReader reads newline-delimited messages on a background goroutine so
// that ReadMessage can observe context cancellation while stdin blocks.
type lineReader struct {
	lines chan lineResult
}

func newLineReader(ctx context.Context, r io.Reader, maxSize int) *lineReader {
	lr := &lineReader{lines: make(chan lineResult)}
	go func() {
		defer close(lr.lines)
		initial := 64 * 1024
		if maxSize < initial {
			initial = maxSize
		}
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, initial), maxSize)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			// Scanner reuses its buffer.
			msg := make([]byte, len(line))
			copy(msg, line)
			select {
			case lr.lines <- lineResult{line: msg}:
			case <-ctx.Done():
				return
			}
		}
		err := sc.Err()
		switch {
		case err == nil:
			err = io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			err = ErrMessageTooLarge
		}
		select {
		case lr.lines <- lineResult{err: err}:
		case <-ctx.Done():
		}
	}()
	return lr
}

func (lr *lineReader) ReadMessage(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res, ok := <-lr.lines:
		if !ok {
			return nil, io.EOF
		}
		if res.err != nil {
			return nil, res.err
		}
		return jsonrpc.Message(res.line), nil
	}
}

// lineWriter frames each message with a trailing newline.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(buf); err != nil {
		return fmt.Errorf("stdio: write: %w", err)
	}
	return nil
}
