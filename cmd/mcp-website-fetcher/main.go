// Command mcp-website-fetcher serves the "fetch" MCP tool over stdio or
// HTTP+SSE.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-website-fetcher/broker"
	"github.com/ggoodman/mcp-website-fetcher/broker/memory"
	"github.com/ggoodman/mcp-website-fetcher/broker/redis"
	"github.com/ggoodman/mcp-website-fetcher/config"
	"github.com/ggoodman/mcp-website-fetcher/fetch"
	"github.com/ggoodman/mcp-website-fetcher/internal/logctx"
	"github.com/ggoodman/mcp-website-fetcher/mcp"
	"github.com/ggoodman/mcp-website-fetcher/mcpservice"
	"github.com/ggoodman/mcp-website-fetcher/sse"
	"github.com/ggoodman/mcp-website-fetcher/stdio"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp-website-fetcher: %v\n", err)
		os.Exit(1)
	}
}

// run wires the process and blocks until the transport finishes or ctx is
// cancelled. Logs always go to stderr since stdout may carry the stdio wire.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load("mcp-website-fetcher", args, stderr)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := slog.New(logctx.Handler{Handler: cfg.NewLogHandler(stderr)})

	fetcher := fetch.New(fetch.WithUserAgent(cfg.UserAgent), fetch.WithLogger(log))
	tools, err := mcpservice.NewRegistry(mcpservice.NewFetchTool(fetcher))
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	srv := mcpservice.NewServer(tools,
		mcpservice.WithServerInfo(mcp.ImplementationInfo{
			Name:    cfg.ServerName,
			Version: cfg.ServerVersion,
		}),
		mcpservice.WithInstructions(cfg.Instructions),
	)

	switch cfg.Transport {
	case config.TransportStdio:
		h := stdio.NewHandler(srv, stdio.WithIO(stdin, stdout), stdio.WithLogger(log))
		return h.Serve(ctx)
	default:
		return serveSSE(ctx, cfg, srv, log)
	}
}

func serveSSE(ctx context.Context, cfg *config.Config, srv *mcpservice.Server, log *slog.Logger) error {
	br, closeBroker, err := newBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBroker()

	h := sse.New(srv, br, sse.WithLogger(log), sse.WithKeepAlive(cfg.SSEKeepAlive))

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	hs := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "sse.server.listen", slog.String("addr", ln.Addr().String()), slog.Bool("redis", cfg.RedisAddr != ""))
		errCh <- hs.Serve(ln)
	}()

	select {
	case err := <-errCh:
		_ = h.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("sse.server.shutdown")
	_ = h.Close()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newBroker(ctx context.Context, cfg *config.Config) (broker.Broker, func(), error) {
	if cfg.RedisAddr == "" {
		return memory.New(), func() {}, nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}

	b := redis.New(redis.Config{Client: client, KeyPrefix: cfg.RedisKeyPrefix})
	return b, func() { _ = b.Close() }, nil
}
