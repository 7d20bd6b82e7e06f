package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/piyushrav1/realtime-whiteboard/internal/hub"
)

// WebSocketHandler upgrades HTTP requests and hands the connection to the
// Hub. Rooms are not part of the URL: a connection picks (and may switch) its
// room with join events on the socket.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
}

// NewWebSocketHandler creates the handler. allowedOrigin restricts the
// browser origin; empty allows any (development).
func NewWebSocketHandler(h *hub.Hub, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h}
}

// HandleConnection serves GET /ws.
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		logrus.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn)
	logrus.WithFields(logrus.Fields{
		"conn_id":      client.ID(),
		"display_name": client.DisplayName(),
		"remote":       c.ClientIP(),
	}).Info("Connection upgraded")

	h.hub.Register(client)
	client.Run()
}
