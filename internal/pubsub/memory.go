package pubsub

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker.
// Used when no Redis is configured (single server process) and in tests.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	channels map[string]struct{}
	out      chan Message
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[*memorySub]struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}

		// Do not block on a slow subscriber, drop instead
		select {
		case sub.out <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}

	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	sub := &memorySub{
		channels: make(map[string]struct{}, len(channels)),
		out:      make(chan Message, 64),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()

		close(sub.out)
	}()

	return sub.out, nil
}

func (b *MemoryBroker) Close() error {
	return nil
}
