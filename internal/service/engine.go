package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
	"github.com/piyushrav1/realtime-whiteboard/internal/repository"
)

// RoomStateEngine owns the logical room lifecycle and mediates every
// state-changing operation against the store.
//
// Failure policy: a store write that matched no document or array element
// (room deleted mid-flight, stale object id) is logged and dropped, never
// escalated; one stale reference must not break room-wide collaboration.
// Store connectivity failures come back as ErrStoreUnavailable.
type RoomStateEngine struct {
	store repository.RoomStore
}

// NewRoomStateEngine creates the engine.
func NewRoomStateEngine(store repository.RoomStore) *RoomStateEngine {
	if store == nil {
		panic("RoomStore cannot be nil for RoomStateEngine")
	}
	return &RoomStateEngine{store: store}
}

// JoinOrCreate returns the room's full snapshot, creating the room empty
// first if it does not exist. The upsert is atomic in the store, so
// concurrent first-joiners get the same single document.
func (e *RoomStateEngine) JoinOrCreate(ctx context.Context, roomName string) (*domain.Room, error) {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return nil, err
	}
	room, err := e.store.JoinOrCreate(ctx, roomName)
	if err != nil {
		logrus.WithField("room", roomName).WithError(err).Error("Join-or-create failed")
		return nil, storeErr(err)
	}
	return room, nil
}

// StartObject appends a validated object to the room's object sequence.
func (e *RoomStateEngine) StartObject(ctx context.Context, roomName string, obj domain.DrawingObject) error {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return err
	}
	if err := obj.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	matched, err := e.store.InsertObject(ctx, roomName, obj)
	return e.settle(roomName, obj.ID, "startObject", matched, err)
}

// AppendLinePoints appends coordinates to an active line object. Targets
// objects of type "line" only; anything else is a logged no-op, since the
// append can legitimately race the object's finalization or a room clear.
func (e *RoomStateEngine) AppendLinePoints(ctx context.Context, roomName, objectID string, points []float64) error {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return err
	}
	if objectID == "" {
		return fmt.Errorf("%w: missing object id", ErrInvalidPayload)
	}
	if err := domain.ValidatePoints(points); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	matched, err := e.store.AppendLinePoints(ctx, roomName, objectID, points)
	return e.settle(roomName, objectID, "appendLinePoints", matched, err)
}

// FinalizeObject replaces the stored object wholesale with its authoritative
// terminal state. Being a single replace rather than a merge, it wins over
// any incremental append applied before it, lossy or not.
func (e *RoomStateEngine) FinalizeObject(ctx context.Context, roomName, objectID string, final domain.DrawingObject) error {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return err
	}
	if objectID == "" {
		return fmt.Errorf("%w: missing object id", ErrInvalidPayload)
	}
	if final.ID != objectID {
		return fmt.Errorf("%w: final state id %q does not match object id %q", ErrInvalidPayload, final.ID, objectID)
	}
	if err := final.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	matched, err := e.store.ReplaceObject(ctx, roomName, objectID, final)
	return e.settle(roomName, objectID, "finalizeObject", matched, err)
}

// UpdateAttributes merges the patch fields into the stored object, addressed
// per field so unnamed fields stay untouched. Last write wins per field.
func (e *RoomStateEngine) UpdateAttributes(ctx context.Context, roomName, objectID string, patch map[string]any) error {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return err
	}
	if objectID == "" {
		return fmt.Errorf("%w: missing object id", ErrInvalidPayload)
	}
	clean := domain.SanitizePatch(patch)
	if clean == nil {
		return fmt.Errorf("%w: empty attribute patch", ErrInvalidPayload)
	}
	matched, err := e.store.MergeObjectAttributes(ctx, roomName, objectID, clean)
	return e.settle(roomName, objectID, "updateAttributes", matched, err)
}

// Clear empties the room's object sequence. The chat log is untouched.
func (e *RoomStateEngine) Clear(ctx context.Context, roomName string) error {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return err
	}
	matched, err := e.store.ClearObjects(ctx, roomName)
	return e.settle(roomName, "", "clear", matched, err)
}

// Destroy deletes the room document entirely. Idempotent.
func (e *RoomStateEngine) Destroy(ctx context.Context, roomName string) error {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, roomName); err != nil {
		logrus.WithField("room", roomName).WithError(err).Error("Destroy failed")
		return storeErr(err)
	}
	logrus.WithField("room", roomName).Info("Room destroyed")
	return nil
}

// PostChatMessage stamps the message with the server receipt time and appends
// it to the room's chat log. Returns the stamped message for fan-out.
func (e *RoomStateEngine) PostChatMessage(ctx context.Context, roomName string, msg domain.ChatMessage) (domain.ChatMessage, error) {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if msg.Text == "" {
		return domain.ChatMessage{}, fmt.Errorf("%w: empty chat message", ErrInvalidPayload)
	}
	msg.Timestamp = time.Now().UTC()
	matched, err := e.store.AppendChatMessage(ctx, roomName, msg)
	if err := e.settle(roomName, "", "postChatMessage", matched, err); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// RoomInfo returns the room without creating it. ErrRoomNotFound when absent.
func (e *RoomStateEngine) RoomInfo(ctx context.Context, roomName string) (*domain.Room, error) {
	roomName, err := normalizeRoomName(roomName)
	if err != nil {
		return nil, err
	}
	room, err := e.store.Find(ctx, roomName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storeErr(err)
	}
	return room, nil
}

// settle applies the engine's uniform failure policy to a store outcome.
func (e *RoomStateEngine) settle(roomName, objectID, op string, matched bool, err error) error {
	logCtx := logrus.WithFields(logrus.Fields{"room": roomName, "op": op})
	if objectID != "" {
		logCtx = logCtx.WithField("object_id", objectID)
	}
	if err != nil {
		logCtx.WithError(err).Error("Store operation failed")
		return storeErr(err)
	}
	if !matched {
		logCtx.Warn("Store operation matched nothing, dropped")
	}
	return nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func normalizeRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: missing room name", ErrInvalidPayload)
	}
	return name, nil
}
