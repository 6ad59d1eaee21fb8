package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finxlab/finx/internal/logger"
)

const (
	defaultDialTimeout = 5 * time.Second

	// Receive retry backoff bounds
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// RedisBroker carries events between server processes over Redis pub/sub.
// Constructed explicitly and injected, connection lifecycle belongs to the
// caller: no process-wide singleton, no lazy initialization.
type RedisBroker struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisBroker(ctx context.Context, url string, log logger.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("error while parsing redis url. Err: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect error: %w", err)
	}

	return &RedisBroker{client: client, logger: log}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	ps := b.client.Subscribe(ctx, channels...)

	// Confirm the subscription before returning so a dead redis is reported
	// to the caller instead of silently dropping everything
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe error: %w", err)
	}

	out := make(chan Message, 64)

	go func() {
		defer close(out)
		defer ps.Close() // nolint:errcheck

		backoff := initialBackoff
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}

				// Degraded mode: local delivery keeps working, cross-process
				// fan-out is paused until the channel comes back
				b.logger.Warn("Shared channel receive failed, retrying", "error", err, "backoff", backoff)

				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}

				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = initialBackoff

			select {
			case out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
