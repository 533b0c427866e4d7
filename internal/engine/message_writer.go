package engine

import (
	"context"

	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
)

// MessageReader is the inbound half of a session channel. ReadMessage
// blocks until a message arrives and returns io.EOF once the peer has closed
// the stream.
type MessageReader interface {
	ReadMessage(ctx context.Context) (jsonrpc.Message, error)
}

type MessageReaderFunc func(ctx context.Context) (jsonrpc.Message, error)

func (f MessageReaderFunc) ReadMessage(ctx context.Context) (jsonrpc.Message, error) {
	return f(ctx)
}

// MessageWriter is the outbound half of a session channel.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg jsonrpc.Message) error
}

type MessageWriterFunc func(ctx context.Context, msg jsonrpc.Message) error

func NewMessageWriterFunc(f func(ctx context.Context, msg jsonrpc.Message) error) MessageWriterFunc {
	return f
}

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return f(ctx, msg)
}
