package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/finxlab/finx/internal/handlers/render"
	"github.com/finxlab/finx/internal/logger"
	"github.com/finxlab/finx/internal/models"
	"github.com/finxlab/finx/internal/service/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type wsAuthenticator interface {
	Authenticate(ctx context.Context, access string) (models.User, error)
}

type WSHandler struct {
	bridge *realtime.Bridge
	auth   wsAuthenticator
	logger logger.Logger
}

func NewWS(bridge *realtime.Bridge, auth wsAuthenticator, logger logger.Logger) *WSHandler {
	return &WSHandler{bridge: bridge, auth: auth, logger: logger}
}

// clientMessage is what the browser sends over the socket.
// Market subscriptions carry a symbol list, the singular field is accepted
// as a convenience for clients tracking one instrument.
type clientMessage struct {
	Type        string   `json:"type"`
	Symbol      string   `json:"symbol,omitempty"`
	Symbols     []string `json:"symbols,omitempty"`
	PortfolioID string   `json:"portfolioId,omitempty"`
}

func (m clientMessage) marketSymbols() []string {
	symbols := m.Symbols
	if m.Symbol != "" {
		symbols = append(symbols, m.Symbol)
	}
	return symbols
}

// wsClient adapts one websocket connection to the bridge.
// Deliveries go through a buffered channel, the write pump is the only
// goroutine that touches the connection for writes.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	bridge *realtime.Bridge
	logger logger.Logger
}

func (c *wsClient) ID() string { return c.id }

// Send queues a delivery without blocking. A full buffer means the
// client is too slow, the delivery is dropped.
func (c *wsClient) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if bearer, ok := bearerFromHeader(r); ok {
			token = bearer
		}
	}
	if token == "" {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		bridge: h.bridge,
		logger: h.logger,
	}

	h.bridge.Register(client)
	h.logger.Info("Websocket connected", "conn_id", client.id, "user_id", user.ID)

	go client.writePump()
	go client.readPump()
}

// readPump consumes subscription messages until the connection dies,
// then tears everything down
func (c *wsClient) readPump() {
	defer func() {
		c.bridge.Disconnect(c.id)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("Ignoring malformed client message", "conn_id", c.id, "error", err)
			continue
		}

		c.handle(msg)
	}
}

func (c *wsClient) handle(msg clientMessage) {
	switch msg.Type {
	case "subscribe:market":
		for _, symbol := range msg.marketSymbols() {
			c.bridge.Subscribe(c.id, realtime.KindMarket, symbol)
		}
	case "unsubscribe:market":
		for _, symbol := range msg.marketSymbols() {
			c.bridge.Unsubscribe(c.id, realtime.KindMarket, symbol)
		}
	case "subscribe:portfolio":
		if msg.PortfolioID != "" {
			c.bridge.Subscribe(c.id, realtime.KindPortfolio, msg.PortfolioID)
		}
	case "unsubscribe:portfolio":
		if msg.PortfolioID != "" {
			c.bridge.Unsubscribe(c.id, realtime.KindPortfolio, msg.PortfolioID)
		}
	default:
		c.logger.Debug("Ignoring unknown message type", "conn_id", c.id, "type", msg.Type)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func bearerFromHeader(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return "", false
}
