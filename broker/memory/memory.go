// Package memory provides an in-memory implementation of the broker.Broker
// interface using Go channels. It is suitable for single-node deployments and
// tests.
package memory

import (
	"context"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-website-fetcher/broker"
	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
)

const defaultBufferSize = 64

// Broker implements broker.Broker with one buffered channel per open
// namespace. State is process-local.
type Broker struct {
	mu           sync.Mutex
	namespaces   map[string]*subscription
	eventCounter atomic.Int64
	bufferSize   int
}

type subscription struct {
	b    *Broker
	name string
	ch   chan broker.MessageEnvelope
	done chan struct{}
	once sync.Once
}

// Option configures a memory Broker.
type Option func(*Broker)

// WithBufferSize sets how many messages may be queued per namespace before
// Publish blocks.
func WithBufferSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// New creates a new memory-based broker instance.
func New(opts ...Option) *Broker {
	b := &Broker{
		namespaces: make(map[string]*subscription),
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Open implements broker.Broker.Open
func (b *Broker) Open(ctx context.Context, namespace string) (broker.MessageStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.namespaces[namespace]; exists {
		return nil, broker.ErrNamespaceInUse
	}
	sub := &subscription{
		b:    b,
		name: namespace,
		ch:   make(chan broker.MessageEnvelope, b.bufferSize),
		done: make(chan struct{}),
	}
	b.namespaces[namespace] = sub
	return sub, nil
}

// Publish implements broker.Broker.Publish. It blocks while the namespace
// buffer is full.
func (b *Broker) Publish(ctx context.Context, namespace string, message jsonrpc.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	sub, exists := b.namespaces[namespace]
	b.mu.Unlock()
	if !exists {
		return "", broker.ErrNoSubscriber
	}

	env := broker.MessageEnvelope{
		ID:   strconv.FormatInt(b.eventCounter.Add(1), 10),
		Data: append([]byte(nil), message...),
	}

	select {
	case sub.ch <- env:
		return env.ID, nil
	case <-sub.done:
		return "", broker.ErrNoSubscriber
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Cleanup implements broker.Broker.Cleanup
func (b *Broker) Cleanup(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	sub, exists := b.namespaces[namespace]
	b.mu.Unlock()
	if exists {
		return sub.Close()
	}
	return nil
}

// Next implements broker.MessageStream.Next
func (s *subscription) Next(ctx context.Context) (broker.MessageEnvelope, error) {
	select {
	case <-s.done:
		return broker.MessageEnvelope{}, io.EOF
	default:
	}

	select {
	case env := <-s.ch:
		return env, nil
	case <-s.done:
		return broker.MessageEnvelope{}, io.EOF
	case <-ctx.Done():
		return broker.MessageEnvelope{}, ctx.Err()
	}
}

// Close implements broker.MessageStream.Close
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		if s.b.namespaces[s.name] == s {
			delete(s.b.namespaces, s.name)
		}
		s.b.mu.Unlock()
		close(s.done)
	})
	return nil
}

var (
	_ broker.Broker        = (*Broker)(nil)
	_ broker.MessageStream = (*subscription)(nil)
)
