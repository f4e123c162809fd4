// Package ws serves the market-data websocket. Each connection is a
// subscription.Subscriber; the registry decides what it receives.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketstream/internal/subscription"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	// sendBufferSize bounds queued payloads per client. A full buffer makes
	// Send fail, which evicts the client from the registry.
	sendBufferSize = 256
)

// Inbound ops.
const (
	OpSubscribe   = "subscribe_market"
	OpUnsubscribe = "unsubscribe_market"
)

var (
	errClientClosed = errors.New("ws: client closed")
	errSendFull     = errors.New("ws: send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS and auth middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Registry is the subset of subscription.Registry the hub drives.
type Registry interface {
	Subscribe(marketID string, sub subscription.Subscriber)
	Unsubscribe(marketID string, sub subscription.Subscriber)
	UnsubscribeFromAll(sub subscription.Subscriber)
}

type inbound struct {
	Op       string `json:"op"`
	MarketID string `json:"market_id"`
}

type reply struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id,omitempty"`
	MarketID string `json:"market_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Hub accepts websocket connections and binds them to the registry.
type Hub struct {
	registry Registry
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

func NewHub(registry Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger.With(slog.String("component", "ws")),
		clients:  make(map[string]*client),
	}
}

// client is one websocket connection.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) ID() string { return c.id }

// Send queues payload without blocking.
func (c *client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.close()
		return errSendFull
	}
}

// close signals the write pump, which sends a close frame and tears down
// the connection.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) reply(r reply) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		c.hub.logger.Debug("ws: reply dropped",
			slog.String("client_id", c.id),
			slog.String("error", err.Error()),
		)
	}
}

// HandleWS upgrades the request and starts the client's pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	if !h.add(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c.reply(reply{Type: "hello", ClientID: c.id})
	go c.writePump()
	go c.readPump()
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	n := len(h.clients)
	h.logger.Info("ws: client connected",
		slog.String("client_id", c.id),
		slog.Int("total_clients", n),
	)
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected",
		slog.String("client_id", c.id),
		slog.Int("total_clients", n),
	)
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones. Each read pump then
// unsubscribes its client from the registry.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// readPump handles inbound ops until the connection fails, then releases
// every subscription the client held.
func (c *client) readPump() {
	defer func() {
		c.hub.registry.UnsubscribeFromAll(c)
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.handle(message)
	}
}

func (c *client) handle(message []byte) {
	var msg inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(reply{Type: "error", Error: "malformed message"})
		return
	}

	switch msg.Op {
	case OpSubscribe, OpUnsubscribe:
		if msg.MarketID == "" {
			c.reply(reply{Type: "error", Error: "market_id is required"})
			return
		}
	default:
		c.reply(reply{Type: "error", Error: "unknown op: " + msg.Op})
		return
	}

	if msg.Op == OpSubscribe {
		c.hub.registry.Subscribe(msg.MarketID, c)
		c.reply(reply{Type: "subscribed", MarketID: msg.MarketID})
	} else {
		c.hub.registry.Unsubscribe(msg.MarketID, c)
		c.reply(reply{Type: "unsubscribed", MarketID: msg.MarketID})
	}
	c.hub.logger.Debug("ws: subscription changed",
		slog.String("client_id", c.id),
		slog.String("op", msg.Op),
		slog.String("market_id", msg.MarketID),
	)
}

// writePump drains the send buffer and pings the peer.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
