package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Message is the envelope pushed to clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mobile clients connect from arbitrary origins; access is
			// controlled by the API auth middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[INFO] WebSocket client registered: %s", client.conn.RemoteAddr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("[INFO] WebSocket client unregistered: %s", client.conn.RemoteAddr())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					log.Printf("[WARN] WebSocket client %s send buffer full, removing", client.conn.RemoteAddr())
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(kind string, payload any) ([]byte, error) {
	return json.Marshal(Message{Type: kind, Payload: payload})
}

// Broadcast queues a message for every client. It never blocks; messages
// are dropped when the queue is full or the hub has stopped.
func (h *Hub) Broadcast(kind string, payload any) {
	message, err := encode(kind, payload)
	if err != nil {
		log.Printf("[ERROR] Error marshalling %s for broadcast: %v", kind, err)
		return
	}
	select {
	case <-h.done:
	case h.broadcast <- message:
	default:
		log.Printf("[WARN] Broadcast queue full, dropping %s message", kind)
	}
}

// ServeWS upgrades the request and registers the connection. When initial
// is set, its result is sent to the new client first as a "status" message.
func (h *Hub) ServeWS(initial func(ctx context.Context) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WARN] WebSocket upgrade failed: %v", err)
			return
		}

		client := &Client{hub: h, conn: conn, send: make(chan []byte, 16)}
		if initial != nil {
			if payload, err := initial(r.Context()); err != nil {
				log.Printf("[WARN] Failed to build initial status for %s: %v", conn.RemoteAddr(), err)
			} else if message, err := encode("status", payload); err == nil {
				client.send <- message
			}
		}

		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
