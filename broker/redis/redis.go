// Package redis implements broker.Broker on Redis Streams so that a POST
// received by any node reaches the node holding the session's SSE stream.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-website-fetcher/broker"
	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
)

const (
	defaultKeyPrefix   = "mcp:fetcher:broker:"
	defaultPresenceTTL = 30 * time.Second
	readBlock          = time.Second
)

// Broker is a Redis Streams-based implementation of the broker.Broker
// interface. Each open namespace owns a presence key whose TTL is refreshed
// while its stream is being read; Publish refuses namespaces without one.
type Broker struct {
	client      redis.UniversalClient
	keyPrefix   string
	presenceTTL time.Duration
}

// Config contains configuration options for the Redis broker.
type Config struct {
	// Client is the Redis client to use. If nil, a client for localhost:6379
	// is created.
	Client redis.UniversalClient
	// KeyPrefix is prepended to all Redis keys used by the broker.
	// Defaults to "mcp:fetcher:broker:" if empty.
	KeyPrefix string
	// PresenceTTL bounds how long a namespace stays publishable after its
	// reader disappears without closing. Defaults to 30s.
	PresenceTTL time.Duration
}

// New creates a new Redis-based broker instance.
func New(config Config) *Broker {
	client := config.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr: "localhost:6379",
		})
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	ttl := config.PresenceTTL
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}

	return &Broker{
		client:      client,
		keyPrefix:   keyPrefix,
		presenceTTL: ttl,
	}
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Open implements broker.Broker.Open
func (b *Broker) Open(ctx context.Context, namespace string) (broker.MessageStream, error) {
	ok, err := b.client.SetNX(ctx, b.presenceKey(namespace), "1", b.presenceTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim namespace %s: %w", namespace, err)
	}
	if !ok {
		return nil, broker.ErrNamespaceInUse
	}

	s := &stream{
		b:         b,
		namespace: namespace,
		startID:   "0",
		closed:    make(chan struct{}),
	}
	go s.keepAlive()
	return s, nil
}

// Publish implements broker.Broker.Publish
func (b *Broker) Publish(ctx context.Context, namespace string, message jsonrpc.Message) (string, error) {
	n, err := b.client.Exists(ctx, b.presenceKey(namespace)).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check namespace %s: %w", namespace, err)
	}
	if n == 0 {
		return "", broker.ErrNoSubscriber
	}

	streamKey := b.streamKey(namespace)

	pipe := b.client.TxPipeline()
	add := pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{
			"data": []byte(message),
		},
	})
	pipe.PExpire(ctx, streamKey, b.presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to publish message to stream %s: %w", streamKey, err)
	}

	return add.Val(), nil
}

// Cleanup implements broker.Broker.Cleanup
func (b *Broker) Cleanup(ctx context.Context, namespace string) error {
	err := b.client.Del(ctx, b.streamKey(namespace), b.presenceKey(namespace)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to cleanup namespace %s: %w", namespace, err)
	}
	return nil
}

func (b *Broker) streamKey(namespace string) string {
	return b.keyPrefix + "stream:" + namespace
}

func (b *Broker) presenceKey(namespace string) string {
	return b.keyPrefix + "presence:" + namespace
}

type stream struct {
	b         *Broker
	namespace string

	mu      sync.Mutex
	startID string
	pending []broker.MessageEnvelope

	closeOnce sync.Once
	closed    chan struct{}
}

// Next implements broker.MessageStream.Next
func (s *stream) Next(ctx context.Context) (broker.MessageEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case <-s.closed:
			return broker.MessageEnvelope{}, io.EOF
		case <-ctx.Done():
			return broker.MessageEnvelope{}, ctx.Err()
		default:
		}

		if len(s.pending) > 0 {
			env := s.pending[0]
			s.pending = s.pending[1:]
			return env, nil
		}

		present, err := s.b.client.PExpire(ctx, s.b.presenceKey(s.namespace), s.b.presenceTTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return broker.MessageEnvelope{}, ctx.Err()
			}
			return broker.MessageEnvelope{}, fmt.Errorf("failed to refresh namespace %s: %w", s.namespace, err)
		}
		if !present {
			// Cleanup removed the namespace, possibly from another node.
			return broker.MessageEnvelope{}, io.EOF
		}

		streamKey := s.b.streamKey(s.namespace)
		streams, err := s.b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, s.startID},
			Count:   16,
			Block:   readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return broker.MessageEnvelope{}, ctx.Err()
			}
			return broker.MessageEnvelope{}, fmt.Errorf("failed to read from stream %s: %w", streamKey, err)
		}

		for _, st := range streams {
			for _, message := range st.Messages {
				s.startID = message.ID
				data, ok := message.Values["data"].(string)
				if !ok {
					continue
				}
				s.pending = append(s.pending, broker.MessageEnvelope{ID: message.ID, Data: []byte(data)})
			}
		}
	}
}

// keepAlive extends the presence and stream keys every third of the TTL
// until the stream is closed, so a reader busy with a long request does not
// lose its namespace or queued messages.
func (s *stream) keepAlive() {
	t := time.NewTicker(s.b.presenceTTL / 3)
	defer t.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.b.presenceTTL/3)
			pipe := s.b.client.Pipeline()
			presence := pipe.PExpire(ctx, s.b.presenceKey(s.namespace), s.b.presenceTTL)
			pipe.PExpire(ctx, s.b.streamKey(s.namespace), s.b.presenceTTL)
			_, _ = pipe.Exec(ctx)
			cancel()
			if present, err := presence.Result(); err == nil && !present {
				return
			}
		}
	}
}

// Close implements broker.MessageStream.Close
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.b.Cleanup(ctx, s.namespace)
	})
	return err
}

var (
	_ broker.Broker        = (*Broker)(nil)
	_ broker.MessageStream = (*stream)(nil)
)
