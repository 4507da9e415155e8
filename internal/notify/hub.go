// Package notify provides WebSocket event delivery for real-time user
// notifications such as friend requests and album access decisions.
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types delivered over the notification socket.
const (
	EventFriendRequest      = "friend_request"
	EventFriendAccepted     = "friend_accepted"
	EventFavorited          = "favorited"
	EventAlbumAccessRequest = "album_access_request"
	EventAlbumAccessGranted = "album_access_granted"
	EventAlbumAccessDenied  = "album_access_denied"
)

// Event is a single notification pushed to a connected user.
type Event struct {
	Type       string    `json:"type"`
	FromUserID string    `json:"from_user_id,omitempty"`
	AlbumID    string    `json:"album_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Hub manages WebSocket connections and routes events to users.
// A user may hold several connections (multiple devices).
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]bool // userID -> connections
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]map[*websocket.Conn]bool),
	}
}

// Subscribe registers a WebSocket connection for a user.
func (h *Hub) Subscribe(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[userID] == nil {
		h.connections[userID] = make(map[*websocket.Conn]bool)
	}
	h.connections[userID][conn] = true
}

// Unsubscribe removes a WebSocket connection from all users.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.connections {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
	}
}

// Notify sends an event to all active connections of a user.
// Missing or disconnected users are not an error; delivery is best effort.
func (h *Hub) Notify(userID string, event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, exists := h.connections[userID]
	if !exists || len(conns) == 0 {
		return
	}

	// Serialize event once
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal notification event", "error", err)
		return
	}

	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send notification to websocket client",
				"error", err,
				"user_id", userID,
			)
			// Connection will be cleaned up when client disconnects
		}
	}
}

// ConnectionCount returns the number of active connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if conns, exists := h.connections[userID]; exists {
		return len(conns)
	}
	return 0
}
