package hub

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
	"github.com/piyushrav1/realtime-whiteboard/internal/dto"
	"github.com/piyushrav1/realtime-whiteboard/internal/service"
)

// storeOpTimeout bounds a single store call so a hung backend cannot stall the
// Hub loop indefinitely.
const storeOpTimeout = 10 * time.Second

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), storeOpTimeout)
}

// dispatch maps one inbound frame to exactly one engine call plus its
// fan-out. A malformed frame is rejected with operationFailed to the sender
// and nothing is broadcast.
//
// For mutations whose store write matched nothing (room reaped mid-flight,
// stale object id) the delta is still fanned out to peers: suppressing it
// would visibly freeze a stroke for everyone over a race that heals on the
// next join anyway. The canonical copy is lost either way.
func (h *Hub) dispatch(c *Client, raw []byte) {
	env, err := dto.DecodeEnvelope(raw)
	if err != nil {
		h.rejectFrame(c, "", err)
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id, "event": env.Type})

	switch env.Type {
	case dto.EventJoin:
		var p dto.JoinPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		h.handleJoin(c, p.RoomName)

	case dto.EventStartObject:
		var p dto.StartObjectPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := h.engine.StartObject(ctx, p.RoomName, p.Object); err != nil {
			h.replyFailure(c, env.Type, err)
			return
		}
		h.fanOut(c, p.RoomName, dto.EventObjectStarted, p.Object, true)

	case dto.EventAppendPoints:
		var p dto.AppendPointsPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := h.engine.AppendLinePoints(ctx, p.RoomName, p.ObjectID, p.NewPoints); err != nil {
			h.replyFailure(c, env.Type, err)
			return
		}
		h.fanOut(c, p.RoomName, dto.EventPointsAppended, dto.PointsAppendedPayload{
			ObjectID:  p.ObjectID,
			NewPoints: p.NewPoints,
		}, true)

	case dto.EventFinalizeObject:
		var p dto.FinalizeObjectPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := h.engine.FinalizeObject(ctx, p.RoomName, p.ObjectID, p.FinalState); err != nil {
			h.replyFailure(c, env.Type, err)
			return
		}
		h.fanOut(c, p.RoomName, dto.EventObjectFinalized, dto.ObjectFinalizedPayload{
			ObjectID:   p.ObjectID,
			FinalState: p.FinalState,
		}, true)

	case dto.EventUpdateAttributes:
		var p dto.UpdateAttributesPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := h.engine.UpdateAttributes(ctx, p.RoomName, p.ObjectID, p.Patch); err != nil {
			h.replyFailure(c, env.Type, err)
			return
		}
		h.fanOut(c, p.RoomName, dto.EventAttributesUpdated, dto.AttributesUpdatedPayload{
			ObjectID: p.ObjectID,
			Patch:    domain.SanitizePatch(p.Patch),
		}, true)

	case dto.EventClear:
		var p dto.RoomPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		ctx, cancel := opContext()
		defer cancel()
		if err := h.engine.Clear(ctx, p.RoomName); err != nil {
			h.replyFailure(c, env.Type, err)
			return
		}
		// Everyone including the sender wipes their canvas.
		h.fanOut(c, p.RoomName, dto.EventRoomCleared, nil, false)

	case dto.EventChatMessage:
		var p dto.ChatMessagePayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		h.handleChat(c, p)

	case dto.EventCloseRoom:
		var p dto.RoomPayload
		if err := dto.DecodePayload(env, &p); err != nil {
			h.rejectFrame(c, env.Type, err)
			return
		}
		h.handleCloseRoom(c, p.RoomName)

	default:
		logCtx.Warn("Unknown event type")
		h.replyFailure(c, env.Type, service.ErrInvalidPayload)
	}
}

// handleJoin moves the connection into roomName (severing any previous room),
// disarms the room's destruction timer, and replies with the full snapshot.
func (h *Hub) handleJoin(c *Client, roomName string) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		h.rejectFrame(c, dto.EventJoin, errors.New("missing room name"))
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"conn_id": c.id, "room": roomName})

	vacated, rejoined := h.members.join(c, roomName)
	if vacated != "" {
		h.checkEmptiness(vacated)
	}
	h.reaper.RoomOccupied(roomName)

	ctx, cancel := opContext()
	defer cancel()
	room, err := h.engine.JoinOrCreate(ctx, roomName)
	if err != nil {
		logCtx.WithError(err).Error("Join failed")
		h.replyFailure(c, dto.EventJoin, err)
		return
	}

	snapshot := dto.RoomStatePayload{Objects: room.Objects, ChatLog: room.ChatLog}
	if snapshot.Objects == nil {
		snapshot.Objects = []domain.DrawingObject{}
	}
	if snapshot.ChatLog == nil {
		snapshot.ChatLog = []domain.ChatMessage{}
	}
	if frame, err := dto.Encode(dto.EventRoomState, snapshot); err == nil {
		c.trySend(frame)
	} else {
		logCtx.WithError(err).Error("Failed to encode room snapshot")
	}
	// A rejoin is a resync: the client only needs the fresh snapshot, peers
	// already know about it.
	if !rejoined {
		h.fanOut(c, roomName, dto.EventUserJoined, dto.UserJoinedPayload{DisplayName: c.displayName}, true)
	}
	logCtx.WithField("display_name", c.displayName).Info("Client joined room")
}

func (h *Hub) handleChat(c *Client, p dto.ChatMessagePayload) {
	ctx, cancel := opContext()
	defer cancel()
	msg, err := h.engine.PostChatMessage(ctx, p.RoomName, domain.ChatMessage{
		SenderID:    c.id,
		DisplayName: c.displayName,
		Text:        p.Text,
	})
	if err != nil {
		h.replyFailure(c, dto.EventChatMessage, err)
		return
	}
	// Chat echoes back to the sender so all clients render the same
	// server-stamped message.
	h.fanOut(c, p.RoomName, dto.EventChatMessage, msg, false)
}

// handleCloseRoom is the explicit user action: evict everyone now, delete the
// document now, and cancel any pending destruction timer.
func (h *Hub) handleCloseRoom(c *Client, roomName string) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		h.rejectFrame(c, dto.EventCloseRoom, errors.New("missing room name"))
		return
	}
	evicted := h.members.evict(roomName)
	h.reaper.Cancel(roomName)

	ctx, cancel := opContext()
	defer cancel()
	if err := h.engine.Destroy(ctx, roomName); err != nil {
		h.replyFailure(c, dto.EventCloseRoom, err)
		return
	}
	logrus.WithFields(logrus.Fields{"room": roomName, "evicted": len(evicted)}).
		Info("Room closed by user request")
	h.NotifyRoomDestroyed(roomName)
}

// fanOut encodes one outbound event and broadcasts it to the room.
func (h *Hub) fanOut(sender *Client, roomName, eventType string, payload any, excludeSender bool) {
	frame, err := dto.Encode(eventType, payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{"room": roomName, "event": eventType}).
			WithError(err).Error("Failed to encode outbound event")
		return
	}
	exclude := sender
	if !excludeSender {
		exclude = nil
	}
	h.broadcastRoom(strings.TrimSpace(roomName), frame, exclude)
}

// rejectFrame handles a ProtocolViolation: log, tell the sender, drop.
func (h *Hub) rejectFrame(c *Client, eventType string, err error) {
	logrus.WithFields(logrus.Fields{"conn_id": c.id, "event": eventType}).
		WithError(err).Warn("Rejected malformed frame")
	frame, encErr := dto.Encode(dto.EventOperationFailed, dto.OperationFailedPayload{Reason: "malformed message"})
	if encErr == nil {
		c.trySend(frame)
	}
}

// replyFailure reports an engine failure to the originating connection only.
func (h *Hub) replyFailure(c *Client, eventType string, err error) {
	reason := "operation failed"
	switch {
	case errors.Is(err, service.ErrInvalidPayload):
		reason = "invalid payload"
	case errors.Is(err, service.ErrStoreUnavailable):
		reason = "database error"
	}
	logrus.WithFields(logrus.Fields{"conn_id": c.id, "event": eventType}).
		WithError(err).Warn("Operation failed, notifying sender")
	frame, encErr := dto.Encode(dto.EventOperationFailed, dto.OperationFailedPayload{Reason: reason})
	if encErr == nil {
		c.trySend(frame)
	}
}
