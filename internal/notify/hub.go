// Package notify pushes ledger events to connected back-office clients
// over websockets. Delivery is best effort: a slow or broken connection
// is dropped rather than allowed to stall a broadcast.
package notify

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sarafa/backend/internal/domain"
)

const writeTimeout = 5 * time.Second

type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens in the HTTP middleware before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

// Serve upgrades the request and holds the connection until the client
// goes away. Clients only listen; inbound frames are read and discarded
// to service pings and detect closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[notify] WARN: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()
	log.Printf("[notify] client connected (%d active)", count)

	defer h.drop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		_ = conn.Close()
	}
	count := len(h.conns)
	h.mu.Unlock()
	log.Printf("[notify] client disconnected (%d active)", count)
}

// Broadcast sends the event to every connected client. Write failures
// drop the connection and the broadcast continues.
func (h *Hub) Broadcast(_ context.Context, event domain.Event) {
	h.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	for _, conn := range targets {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("[notify] WARN: dropping client after write failure: %v", err)
			h.drop(conn)
		}
	}
}

// Close disconnects every client, used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = map[*websocket.Conn]struct{}{}
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
