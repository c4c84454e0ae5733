// Package ws pushes inbox change events to connected dashboards over
// WebSocket.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whatsapp-inbox/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans change events out to every connected dashboard. Events are
// forwarded in arrival order; a slow client is dropped rather than
// allowed to stall the rest.
type Hub struct {
	bus    events.Bus
	logger *zap.Logger

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	subs       []*events.Subscription
	mu         sync.Mutex
}

func NewHub(bus events.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		bus:        bus,
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the event bus and begins dispatching. Call once.
func (h *Hub) Start() error {
	for _, topic := range []string{events.MessageNew, events.MessageStatus, events.ConversationUpdated} {
		sub, err := h.bus.Subscribe(topic, h.forward)
		if err != nil {
			return err
		}
		h.subs = append(h.subs, sub)
	}
	go h.run()
	return nil
}

// Stop unsubscribes from the bus and disconnects every client.
func (h *Hub) Stop() {
	for _, sub := range h.subs {
		if err := h.bus.Unsubscribe(sub); err != nil {
			h.logger.Warn("unsubscribe failed", zap.Error(err))
		}
	}
	close(h.done)
}

func (h *Hub) forward(evt events.Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("event", evt.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected")
		case payload := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ServeWs upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		// Clients only listen; reads just detect disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
