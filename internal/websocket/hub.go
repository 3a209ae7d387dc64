package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Registered clients (userID -> Client)
	clients map[string]*Client

	// Messages addressed to a single user
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	// Mutex for thread-safe client map access
	mu sync.RWMutex
}

// Message represents a message to broadcast to a specific user
type Message struct {
	UserID string
	Data   interface{}
}

// Event is the envelope every server-pushed message uses.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled. All
// connected clients are closed on the way out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for userID, client := range h.clients {
				close(client.send)
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			// A second connection for the same user replaces the first.
			if old, ok := h.clients[client.UserID]; ok && old != client {
				close(old.send)
			}
			h.clients[client.UserID] = client
			count := len(h.clients)
			h.mu.Unlock()
			slog.Info("✅ [WEBSOCKET] client connected", "user_id", client.UserID, "role", client.UserRole, "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.UserID]; ok && current == client {
				delete(h.clients, client.UserID)
				close(client.send)
				slog.Info("🔴 [WEBSOCKET] client disconnected", "user_id", client.UserID, "clients", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message.Data)
			if err != nil {
				slog.Error("❌ [WEBSOCKET] failed to marshal message", "err", err)
				continue
			}

			h.mu.Lock()
			if client, ok := h.clients[message.UserID]; ok {
				select {
				case client.send <- data:
				default:
					// Client buffer full, disconnect
					close(client.send)
					delete(h.clients, client.UserID)
					slog.Warn("⚠️  [WEBSOCKET] client buffer full, disconnecting", "user_id", message.UserID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client if it is still the user's current connection.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToUser queues a message for a specific user. Messages are dropped
// if the hub's queue is full.
func (h *Hub) BroadcastToUser(userID string, data interface{}) {
	select {
	case h.broadcast <- &Message{UserID: userID, Data: data}:
	default:
		slog.Warn("⚠️  [WEBSOCKET] broadcast queue full, dropping message", "user_id", userID)
	}
}

// reply sends data to client itself. Nothing is sent once the client has been
// replaced by a newer connection or unregistered.
func (h *Hub) reply(client *Client, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		slog.Error("❌ [WEBSOCKET] failed to marshal reply", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[client.UserID] != client {
		return
	}
	select {
	case client.send <- dataBytes:
	default:
		slog.Debug("⚠️  [WEBSOCKET] client buffer full, skipping reply", "user_id", client.UserID)
	}
}

// BroadcastToRole sends a message to all users with a specific role
func (h *Hub) BroadcastToRole(role string, data interface{}) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		slog.Error("❌ [WEBSOCKET] failed to marshal broadcast message", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID, client := range h.clients {
		if client.UserRole != role {
			continue
		}
		select {
		case client.send <- dataBytes:
		default:
			slog.Debug("⚠️  [WEBSOCKET] client buffer full, skipping", "user_id", userID)
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
