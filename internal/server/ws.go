package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/posturepilot/internal/app"
)

const (
	// clientBuffer is the number of queued messages per client. A client
	// that falls further behind misses events.
	clientBuffer = 256
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type snapshotMessage struct {
	Type     string       `json:"type"`
	Snapshot app.Snapshot `json:"snapshot"`
}

// EventsHandler broadcasts controller events to WebSocket clients as JSON.
type EventsHandler struct {
	snapshot    func() app.Snapshot
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
	closed  bool
}

// NewEventsHandler creates an EventsHandler. snapshot, if set, is sent to
// each client when it connects.
func NewEventsHandler(snapshot func() app.Snapshot) *EventsHandler {
	return &EventsHandler{
		snapshot: snapshot,
		clients:  make(map[*websocket.Conn]chan []byte),
	}
}

// Attach subscribes the handler to the controller's events.
func (h *EventsHandler) Attach(c interface {
	Subscribe(fn func(app.Event)) func()
}) {
	h.unsubscribe = c.Subscribe(h.Broadcast)
}

// Broadcast queues e for every connected client without blocking.
func (h *EventsHandler) Broadcast(e app.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", e.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, send := range h.clients {
		select {
		case send <- msg:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventsHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Register before taking the snapshot so no event falls between the two.
	// Events queued meanwhile are sent after the snapshot.
	send := make(chan []byte, clientBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[conn] = send
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	if h.snapshot != nil {
		msg, err := json.Marshal(snapshotMessage{Type: "snapshot", Snapshot: h.snapshot()})
		if err != nil {
			log.Printf("Failed to encode snapshot: %v", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Keep connection alive by reading messages
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.write(conn, send, done)
}

func (h *EventsHandler) write(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Close unsubscribes from the controller and disconnects every client.
func (h *EventsHandler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for conn, send := range h.clients {
		close(send)
		delete(h.clients, conn)
	}
}
