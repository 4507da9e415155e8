package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/notify"
)

var notificationUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens via RequireAuth before the upgrade; cross-origin
	// browser clients are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	notificationPongWait   = 60 * time.Second
	notificationPingPeriod = 50 * time.Second
)

// NotificationHandlers serves the real-time notification socket.
type NotificationHandlers struct {
	hub *notify.Hub
}

// NewNotificationHandlers creates a new NotificationHandlers instance.
func NewNotificationHandlers(hub *notify.Hub) *NotificationHandlers {
	return &NotificationHandlers{hub: hub}
}

// Subscribe handles GET /ws/notifications - upgrades the connection
// and registers it with the hub until the client disconnects.
func (h *NotificationHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	conn, err := notificationUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.WarnContext(ctx, "websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	h.hub.Subscribe(userID, conn)
	slog.DebugContext(ctx, "notification socket connected",
		"user_id", userID,
		"connections", h.hub.ConnectionCount(userID),
	)

	defer func() {
		h.hub.Unsubscribe(conn)
		conn.Close()
		slog.DebugContext(ctx, "notification socket disconnected", "user_id", userID)
	}()

	conn.SetReadDeadline(time.Now().Add(notificationPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(notificationPongWait))
	})

	// Server-to-client only; the read loop exists to detect closure
	// and answer pings.
	go h.pingLoop(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *NotificationHandlers) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(notificationPingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		deadline := time.Now().Add(10 * time.Second)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}
