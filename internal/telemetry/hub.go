package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeWait = 5 * time.Second

// Event is one message on the dashboard stream.
type Event struct {
	Type string    `json:"type"` // transition, decision, day_mark, status
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Hub fans events out to connected websocket clients. Publishing never blocks
// the trading loop; events are dropped when the buffer is full.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	lock      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Run delivers queued events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case message := <-h.broadcast:
			h.lock.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.lock.Unlock()
		}
	}
}

// Publish encodes and queues an event.
func (h *Hub) Publish(typ string, data any) {
	msg, err := json.Marshal(Event{Type: typ, At: time.Now().UTC(), Data: data})
	if err != nil {
		log.Printf("[WARN] encode telemetry event: %v", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("[WARN] telemetry buffer full, dropping %s event", typ)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] websocket upgrade: %v", err)
		return
	}
	h.lock.Lock()
	h.clients[conn] = true
	h.lock.Unlock()
	go h.readLoop(conn)
}

// readLoop discards client messages and unregisters on disconnect.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.lock.Lock()
			if h.clients[conn] {
				delete(h.clients, conn)
				conn.Close()
			}
			h.lock.Unlock()
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}
