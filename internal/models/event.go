package models

import (
	"encoding/json"
	"time"
)

// Event types carried over the shared channel and pushed to live connections
const (
	EventMarketUpdate    = "market:update"
	EventPortfolioUpdate = "portfolio:update"
)

// Event is the wire format of a realtime update.
// Data carries the domain payload and must contain the routing key:
// "symbol" for market events, "portfolioId" for portfolio events.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}
