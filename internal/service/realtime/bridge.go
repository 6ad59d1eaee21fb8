package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/pubsub"
)

// TopicKind separates the two subscription namespaces
type TopicKind string

const (
	KindMarket    TopicKind = "market"
	KindPortfolio TopicKind = "portfolio"
)

// Conn is one live client connection.
// Send must not block: a backed up connection may drop the delivery, the
// dispatch loop is never stalled by one slow consumer.
type Conn interface {
	ID() string
	Send(data []byte) error
}

type topicKey struct {
	kind TopicKind
	key  string
}

type connState struct {
	conn   Conn
	topics map[topicKey]struct{}
}

// Bridge routes events from the shared channel to subscribed connections.
// The topic map is the source of truth for fan-out, not the transport's
// grouping primitive.
type Bridge struct {
	broker pubsub.Broker
	logger logger.Logger

	mu     sync.RWMutex
	conns  map[string]*connState
	topics map[topicKey]map[string]struct{} // topic -> set of conn ids
}

func NewBridge(broker pubsub.Broker, log logger.Logger) *Bridge {
	return &Bridge{
		broker: broker,
		logger: log,
		conns:  make(map[string]*connState),
		topics: make(map[topicKey]map[string]struct{}),
	}
}

// Register adds a connection with an empty subscription set
func (b *Bridge) Register(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conns[conn.ID()] = &connState{
		conn:   conn,
		topics: make(map[topicKey]struct{}),
	}

	b.logger.Debug("Connection registered", "conn_id", conn.ID())
}

// Subscribe adds the topic to the connection's set. Idempotent.
// Market keys are normalized to upper case, unknown connections are ignored.
func (b *Bridge) Subscribe(connID string, kind TopicKind, key string) {
	tk := normalize(kind, key)

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.conns[connID]
	if !ok {
		return
	}

	state.topics[tk] = struct{}{}

	if b.topics[tk] == nil {
		b.topics[tk] = make(map[string]struct{})
	}
	b.topics[tk][connID] = struct{}{}

	b.logger.Debug("Subscribed", "conn_id", connID, "kind", kind, "key", tk.key)
}

// Unsubscribe removes the topic from the connection's set.
// No-op if the connection never subscribed.
func (b *Bridge) Unsubscribe(connID string, kind TopicKind, key string) {
	tk := normalize(kind, key)

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.conns[connID]
	if !ok {
		return
	}

	delete(state.topics, tk)
	b.dropInterest(tk, connID)

	b.logger.Debug("Unsubscribed", "conn_id", connID, "kind", kind, "key", tk.key)
}

// Disconnect removes the connection from every topic it subscribed to.
// Synchronous: after return no event is delivered to the connection.
func (b *Bridge) Disconnect(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.conns[connID]
	if !ok {
		return
	}

	for tk := range state.topics {
		b.dropInterest(tk, connID)
	}
	delete(b.conns, connID)

	b.logger.Debug("Connection removed", "conn_id", connID)
}

// PublishMarket announces a market change for the symbol.
// Data must marshal to an object carrying a "symbol" field, the routing key.
func (b *Bridge) PublishMarket(ctx context.Context, data any) error {
	return b.publish(ctx, pubsub.ChannelMarketUpdate, models.EventMarketUpdate, data)
}

// PublishPortfolio announces a portfolio change.
// Data must marshal to an object carrying a "portfolioId" field.
func (b *Bridge) PublishPortfolio(ctx context.Context, data any) error {
	return b.publish(ctx, pubsub.ChannelPortfolioUpdate, models.EventPortfolioUpdate, data)
}

func (b *Bridge) publish(ctx context.Context, channel string, eventType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error while encoding event payload. Err: %w", err)
	}

	event := models.Event{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error while encoding event. Err: %w", err)
	}

	if err := b.broker.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("error while publishing event. Err: %w", err)
	}

	return nil
}

// Run is the dispatch loop: consume the shared channel until the context is
// cancelled. Malformed events are logged and dropped, they never stop the
// loop. Returned channel is closed when dispatch is completely stopped.
func (b *Bridge) Run(ctx context.Context) (<-chan struct{}, error) {
	messages, err := b.broker.Subscribe(ctx, pubsub.ChannelMarketUpdate, pubsub.ChannelPortfolioUpdate)
	if err != nil {
		return nil, fmt.Errorf("error while subscribing to shared channel. Err: %w", err)
	}

	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)
		b.logger.Info("Dispatch loop started")

		for {
			select {
			case <-ctx.Done():
				b.logger.Debug("Dispatch loop stopped by context")
				return

			case msg, ok := <-messages:
				if !ok {
					b.logger.Debug("Dispatch loop stopped, shared channel closed")
					return
				}
				b.dispatch(msg)
			}
		}
	}()

	return idleStopped, nil
}

func (b *Bridge) dispatch(msg pubsub.Message) {
	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		b.logger.Error("Dropping malformed event", "channel", msg.Channel, "error", err)
		return
	}

	// Routing key lives inside the payload, same shape the publisher wrote
	var routing struct {
		Symbol      string `json:"symbol"`
		PortfolioID string `json:"portfolioId"`
	}
	if err := json.Unmarshal(event.Data, &routing); err != nil {
		b.logger.Error("Dropping event without routing key", "channel", msg.Channel, "error", err)
		return
	}

	var tk topicKey
	switch msg.Channel {
	case pubsub.ChannelMarketUpdate:
		tk = normalize(KindMarket, routing.Symbol)
	case pubsub.ChannelPortfolioUpdate:
		tk = normalize(KindPortfolio, routing.PortfolioID)
	default:
		b.logger.Warn("Dropping event from unknown channel", "channel", msg.Channel)
		return
	}

	if tk.key == "" {
		b.logger.Error("Dropping event with empty routing key", "channel", msg.Channel)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for connID := range b.topics[tk] {
		state, ok := b.conns[connID]
		if !ok {
			continue
		}

		// Fire-and-forget: one slow consumer drops its own delivery only
		if err := state.conn.Send(msg.Payload); err != nil {
			b.logger.Warn("Dropped delivery to slow connection", "conn_id", connID, "error", err)
		}
	}
}

// dropInterest removes connID from the topic's interest set.
// Caller must hold the write lock.
func (b *Bridge) dropInterest(tk topicKey, connID string) {
	conns, ok := b.topics[tk]
	if !ok {
		return
	}

	delete(conns, connID)
	if len(conns) == 0 {
		delete(b.topics, tk)
	}
}

func normalize(kind TopicKind, key string) topicKey {
	if kind == KindMarket {
		key = strings.ToUpper(key)
	}
	return topicKey{kind: kind, key: key}
}
