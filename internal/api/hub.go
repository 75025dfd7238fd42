package api

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"price-tracker/internal/tracks"
)

// Hub fans change events out to connected websocket clients. Delivery is
// at-least-once toward the hub and best-effort toward each client: a client
// that cannot keep up is dropped rather than allowed to stall the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     zerolog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan tracks.ChangeEvent
}

const clientBuffer = 16

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: map[*client]struct{}{},
		log:     log.With().Str("component", "ws-hub").Logger(),
	}
}

// PublishChange implements tracks.Notifier. It never blocks the caller.
func (h *Hub) PublishChange(ev tracks.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.log.Warn().Msg("dropping slow websocket client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Add registers a connection and starts its writer. The writer owns the
// connection and closes it when the client is removed or the send loop ends.
func (h *Hub) Add(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan tracks.ChangeEvent, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", n).Msg("websocket client connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop drains incoming frames so pings and close handshakes are
// processed; clients have nothing meaningful to send.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
