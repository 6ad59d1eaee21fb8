package pubsub

import (
	"context"
)

// Channel names of the shared fan-out path
const (
	ChannelMarketUpdate    = "market:update"
	ChannelPortfolioUpdate = "portfolio:update"
)

// Message delivered from the shared channel
type Message struct {
	Channel string
	Payload []byte
}

// Broker is the shared publish/subscribe channel between server processes.
// Implementations: RedisBroker for cross-process fan-out, MemoryBroker for
// single-process deployments and tests.
type Broker interface {
	// Publish sends payload to every current subscriber of the channel.
	// Fire-and-forget: no delivery guarantee beyond at-least-once to
	// currently connected subscribers.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a stream of messages for the given channels.
	// The stream is closed when the context is cancelled.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)

	// Close releases the underlying transport
	Close() error
}
