// Package ws streams pipeline events to WebSocket clients. The hub
// subscribes to the in-process bus and fans frames out to every connected
// client, using the same channel names and payload shapes as the Redis
// relay.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/lagbot/internal/domain"
	"github.com/alanyoungcy/lagbot/internal/events"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming subscription messages.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing frames per client.
	sendBufferSize = 256
)

// channels are the broadcast channels clients can subscribe to. They mirror
// the relay's channel names so WebSocket and Redis consumers see the same
// streams.
var channels = []string{"signals", "trades", "positions"}

// upgrader configures the WebSocket upgrade parameters. Origin checks are
// left to the CORS layer in front of the server.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	subs map[string]bool // subscribed channels
}

// subscribeMsg is the JSON message a client sends to manage its channel
// subscriptions: {"action":"subscribe","channels":["signals"]}.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// frame is the envelope written to clients.
type frame struct {
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data"`
}

// Hub manages connected WebSocket clients and broadcasts bus events to
// those subscribed to the event's channel.
type Hub struct {
	log       *slog.Logger
	bus       *events.Bus
	mode      string
	startedAt time.Time

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub creates a hub over the given bus. mode and startedAt feed the
// status frame pushed to clients on connect.
func NewHub(logger *slog.Logger, bus *events.Bus, mode string, startedAt time.Time) *Hub {
	m := strings.TrimSpace(strings.ToLower(mode))
	if m == "" {
		m = "unknown"
	}
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		log:        logger.With(slog.String("component", "ws_hub")),
		bus:        bus,
		mode:       m,
		startedAt:  startedAt,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run services client registration and drains the bus until the context is
// cancelled or the bus closes. It should be called in its own goroutine.
func (h *Hub) Run(ctx context.Context) error {
	ch, cancel := h.bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case evt, ok := <-ch:
			if !ok {
				h.closeAll()
				return nil
			}
			h.fanOut(evt)
		}
	}
}

// fanOut maps one bus event onto its channel frame and delivers it to every
// subscribed client. Clients with a full send buffer lose the frame.
func (h *Hub) fanOut(evt domain.Event) {
	channel, fields := events.Describe(evt)
	if channel == "" {
		return
	}
	data, err := json.Marshal(frame{Channel: channel, Data: fields})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("dropping frame for slow client", slog.String("channel", channel))
		}
	}
}

// closeAll detaches every client and closes their send channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. New clients start subscribed to every channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}

	h.register <- c
	c.sendStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// validChannel reports whether name is a known broadcast channel.
func validChannel(name string) bool {
	for _, ch := range channels {
		if ch == name {
			return true
		}
	}
	return false
}

// readPump reads subscription management messages from the client until the
// connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription applies a subscribe/unsubscribe request. Unknown
// channel names are ignored.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, ch := range msg.Channels {
			if validChannel(ch) {
				c.subs[ch] = true
			}
		}
	case "unsubscribe":
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
	}
}

// sendStatus pushes a status frame so clients can mark the connection
// healthy before the first pipeline event arrives.
func (c *client) sendStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	data, err := json.Marshal(frame{
		Channel: "status",
		Data: map[string]any{
			"event":          "connected",
			"mode":           c.hub.mode,
			"uptime_seconds": uptime,
			"channels":       channels,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}

// isSubscribed checks whether the client is subscribed to the given channel.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// writePump writes frames from the hub to the connection as text messages
// and sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
