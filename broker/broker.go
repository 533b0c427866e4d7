package broker

import (
	"context"
	"errors"

	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
)

var (
	// ErrNoSubscriber is returned by Publish when no stream is open for the
	// namespace. For the SSE transport this means the session token is unknown
	// or its stream has disconnected.
	ErrNoSubscriber = errors.New("broker: no subscriber for namespace")
	// ErrNamespaceInUse is returned by Open when a stream is already open for
	// the namespace.
	ErrNamespaceInUse = errors.New("broker: namespace already open")
)

// Broker routes inbound messages to the single consumer of a namespace. The
// SSE transport opens one namespace per session token; the POST endpoint
// publishes into it, possibly from a different process.
type Broker interface {
	// Open claims namespace and returns the stream of messages published to
	// it from now on. At most one stream may be open per namespace.
	Open(ctx context.Context, namespace string) (MessageStream, error)

	// Publish appends message to namespace. It fails with ErrNoSubscriber
	// when the namespace is not open.
	Publish(ctx context.Context, namespace string, message jsonrpc.Message) (eventID string, err error)

	// Cleanup removes all resources associated with a namespace, closing any
	// open stream.
	Cleanup(ctx context.Context, namespace string) error
}

// MessageStream delivers a namespace's messages in publish order.
type MessageStream interface {
	// Next blocks until the next message is available or ctx is cancelled.
	// It returns io.EOF once the stream has been closed.
	Next(ctx context.Context) (MessageEnvelope, error)

	// Close releases the namespace. Subsequent publishes fail with
	// ErrNoSubscriber.
	Close() error
}

// MessageEnvelope wraps a message with its broker-assigned ID.
type MessageEnvelope struct {
	// ID increases monotonically within a namespace.
	ID string `json:"id"`
	// Data is the raw JSON-RPC message.
	Data []byte `json:"data"`
}
