// Package brokertest is a conformance suite for broker.Broker implementations.
package brokertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-website-fetcher/broker"
	"github.com/ggoodman/mcp-website-fetcher/internal/jsonrpc"
)

// BrokerFactory is a function that creates a new broker instance for testing.
type BrokerFactory func(t *testing.T) broker.Broker

// IdleWait is how long DeliversAfterIdle leaves a stream unread. Factories
// for brokers with expiring state should configure a shorter lifetime.
var IdleWait = time.Second

// RunBrokerTests runs the complete broker test suite against the provided factory.
func RunBrokerTests(t *testing.T, factory BrokerFactory) {
	t.Run("PublishWithoutSubscriber", func(t *testing.T) {
		testPublishWithoutSubscriber(t, factory)
	})
	t.Run("DeliversInPublishOrder", func(t *testing.T) {
		testDeliversInPublishOrder(t, factory)
	})
	t.Run("NamespaceIsolation", func(t *testing.T) {
		testNamespaceIsolation(t, factory)
	})
	t.Run("OpenTwiceFails", func(t *testing.T) {
		testOpenTwiceFails(t, factory)
	})
	t.Run("CloseReleasesNamespace", func(t *testing.T) {
		testCloseReleasesNamespace(t, factory)
	})
	t.Run("CleanupClosesStream", func(t *testing.T) {
		testCleanupClosesStream(t, factory)
	})
	t.Run("NextHonorsContext", func(t *testing.T) {
		testNextHonorsContext(t, factory)
	})
	t.Run("DeliversAfterIdle", func(t *testing.T) {
		testDeliversAfterIdle(t, factory)
	})
}

func namespace(t *testing.T) string {
	return "ns-" + uuid.NewString()
}

func message(i int) jsonrpc.Message {
	return jsonrpc.Message(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"ping"}`, i))
}

func testPublishWithoutSubscriber(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx := context.Background()

	if _, err := b.Publish(ctx, namespace(t), message(1)); !errors.Is(err, broker.ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber, got %v", err)
	}
}

func testDeliversInPublishOrder(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ns := namespace(t)
	stream, err := b.Open(ctx, ns)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer stream.Close()

	const n = 5
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := b.Publish(ctx, ns, message(i))
		if err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		if id == "" {
			t.Fatalf("publish %d returned empty event id", i)
		}
		ids = append(ids, id)
	}

	for i := 0; i < n; i++ {
		env, err := stream.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if env.ID != ids[i] {
			t.Fatalf("message %d: expected id %s, got %s", i, ids[i], env.ID)
		}
		if string(env.Data) != string(message(i)) {
			t.Fatalf("message %d: unexpected data %s", i, env.Data)
		}
	}
}

func testNamespaceIsolation(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nsA, nsB := namespace(t), namespace(t)
	a, err := b.Open(ctx, nsA)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer a.Close()
	bs, err := b.Open(ctx, nsB)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer bs.Close()

	if _, err := b.Publish(ctx, nsB, message(2)); err != nil {
		t.Fatalf("publish b: %v", err)
	}
	if _, err := b.Publish(ctx, nsA, message(1)); err != nil {
		t.Fatalf("publish a: %v", err)
	}

	env, err := a.Next(ctx)
	if err != nil {
		t.Fatalf("next a: %v", err)
	}
	if string(env.Data) != string(message(1)) {
		t.Fatalf("namespace a received %s", env.Data)
	}
	env, err = bs.Next(ctx)
	if err != nil {
		t.Fatalf("next b: %v", err)
	}
	if string(env.Data) != string(message(2)) {
		t.Fatalf("namespace b received %s", env.Data)
	}
}

func testOpenTwiceFails(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx := context.Background()

	ns := namespace(t)
	s, err := b.Open(ctx, ns)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := b.Open(ctx, ns); !errors.Is(err, broker.ErrNamespaceInUse) {
		t.Fatalf("expected ErrNamespaceInUse, got %v", err)
	}
}

func testCloseReleasesNamespace(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ns := namespace(t)
	s, err := b.Open(ctx, ns)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
	if _, err := b.Publish(ctx, ns, message(1)); !errors.Is(err, broker.ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber after close, got %v", err)
	}

	s2, err := b.Open(ctx, ns)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = s2.Close()
}

func testCleanupClosesStream(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ns := namespace(t)
	s, err := b.Open(ctx, ns)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := b.Cleanup(ctx, ns); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if _, err := b.Publish(ctx, ns, message(1)); !errors.Is(err, broker.ErrNoSubscriber) {
		t.Fatalf("expected ErrNoSubscriber after cleanup, got %v", err)
	}
	if _, err := s.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF from Next after cleanup, got %v", err)
	}
	if err := b.Cleanup(ctx, namespace(t)); err != nil {
		t.Fatalf("cleanup of unknown namespace: %v", err)
	}
}

func testNextHonorsContext(t *testing.T, factory BrokerFactory) {
	b := factory(t)

	ns := namespace(t)
	s, err := b.Open(context.Background(), ns)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("Next did not return promptly after cancellation")
	}
}

// testDeliversAfterIdle covers a reader that stops calling Next for a while,
// as the SSE transport does while a slow request is being served.
func testDeliversAfterIdle(t *testing.T, factory BrokerFactory) {
	b := factory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second+IdleWait)
	defer cancel()

	ns := namespace(t)
	s, err := b.Open(ctx, ns)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := b.Publish(ctx, ns, message(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	time.Sleep(IdleWait)

	if _, err := b.Publish(ctx, ns, message(2)); err != nil {
		t.Fatalf("publish after idle: %v", err)
	}
	for i := 1; i <= 2; i++ {
		env, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if string(env.Data) != string(message(i)) {
			t.Fatalf("message %d: unexpected data %s", i, env.Data)
		}
	}
}
