package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSEvent is one push message to dashboard clients.
type WSEvent struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts pipeline state changes to connected WebSocket clients so
// the dashboard refreshes without polling. Broadcast never blocks: when the
// queue is full the event is dropped, and a client that cannot keep up is
// disconnected. The pipeline must not be able to feel a slow browser.
type Hub struct {
	log       *logrus.Logger
	clients   map[*websocket.Conn]string
	clientsMu sync.RWMutex
	broadcast chan WSEvent
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:       log,
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan WSEvent, 64),
	}
}

// Run pumps broadcast events to all clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case event := <-h.broadcast:
			h.clientsMu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range conns {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					h.drop(conn)
				}
			}
		}
	}
}

// Broadcast queues an event for delivery; drops it when the queue is full.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	event := WSEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	select {
	case h.broadcast <- event:
	default:
	}
}

// ServeWS upgrades the connection and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	clientID := uuid.NewString()
	h.clientsMu.Lock()
	h.clients[conn] = clientID
	h.clientsMu.Unlock()
	h.log.WithField("client_id", clientID).Debug("WebSocket client connected")

	// Reader loop: we ignore inbound messages, it only exists to detect
	// the client going away.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.clientsMu.Lock()
	clientID, ok := h.clients[conn]
	delete(h.clients, conn)
	h.clientsMu.Unlock()
	if ok {
		h.log.WithField("client_id", clientID).Debug("WebSocket client disconnected")
	}
	conn.Close()
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]string)
}
