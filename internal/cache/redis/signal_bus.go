package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SignalBus implements domain.SignalBus over Redis Pub/Sub. The engine
// publishes one tick per applied book snapshot; attached processes (hub
// relays, dashboards) subscribe without touching the in-memory book.
type SignalBus struct {
	rdb    *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &SignalBus{rdb: c.Underlying(), ctx: ctx, cancel: cancel}
}

// Publish sends a raw byte payload to a Pub/Sub channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a read-only channel of raw payloads for one Pub/Sub
// channel. The subscription ends, and the returned channel closes, when the
// caller's context is cancelled or the bus is closed.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, channel)

	// Receive the confirmation so a dead broker fails here, not silently.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sb.ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				case <-sb.ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends every subscription started through this bus. The underlying
// Redis client is owned by the caller and stays open.
func (sb *SignalBus) Close() error {
	sb.cancel()
	return nil
}
