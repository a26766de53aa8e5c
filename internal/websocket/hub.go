package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message represents a real-time event pushed to connected app clients.
type Message struct {
	Type   string         `json:"type"`
	BookID string         `json:"book_id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// SummaryReady builds the event sent when a book summary finishes.
func SummaryReady(bookID, title string) Message {
	return Message{
		Type:   "summary_ready",
		BookID: bookID,
		Extra:  map[string]any{"book_title": title},
	}
}

// SummaryFailed builds the event sent when a summary job errors out.
func SummaryFailed(bookID string) Message {
	return Message{
		Type:   "summary_failed",
		BookID: bookID,
	}
}

// Hub maintains the set of active WebSocket clients and routes messages to
// them, either broadcast or addressed to a single user's connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		c.trySend(data)
	}
}

// SendToUser delivers a message to every connection belonging to userID.
// A user with no open connections is not an error.
func (h *Hub) SendToUser(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal user message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.userID == userID {
			c.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
