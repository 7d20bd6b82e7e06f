package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/piyushrav1/realtime-whiteboard/internal/hub"
	"github.com/piyushrav1/realtime-whiteboard/internal/service"
)

// RoomHandler serves the read-only lobby endpoints. Everything that mutates a
// room goes over the websocket protocol.
type RoomHandler struct {
	engine *service.RoomStateEngine
	hub    *hub.Hub
}

func NewRoomHandler(engine *service.RoomStateEngine, h *hub.Hub) *RoomHandler {
	if engine == nil {
		panic("RoomStateEngine cannot be nil for RoomHandler")
	}
	if h == nil {
		panic("Hub cannot be nil for RoomHandler")
	}
	return &RoomHandler{engine: engine, hub: h}
}

// roomInfoResponse is the lobby view of a room: does it exist, and how busy
// is it.
type roomInfoResponse struct {
	Name         string `json:"name"`
	Exists       bool   `json:"exists"`
	Members      int    `json:"members"`
	ObjectCount  int    `json:"objectCount"`
	ChatMessages int    `json:"chatMessages"`
}

// GetRoom serves GET /api/rooms/:name.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	name := c.Param("name")

	room, err := h.engine.RoomInfo(c.Request.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRoomNotFound):
			SuccessResponse(c, http.StatusOK, roomInfoResponse{Name: name, Exists: false})
		case errors.Is(err, service.ErrInvalidPayload):
			ErrorResponse(c, http.StatusBadRequest, "invalid room name")
		default:
			logrus.WithField("room", name).WithError(err).Error("Room info lookup failed")
			ErrorResponse(c, http.StatusInternalServerError, "failed to look up room")
		}
		return
	}

	SuccessResponse(c, http.StatusOK, roomInfoResponse{
		Name:         room.Name,
		Exists:       true,
		Members:      h.hub.MembersOf(room.Name),
		ObjectCount:  len(room.Objects),
		ChatMessages: len(room.ChatLog),
	})
}
