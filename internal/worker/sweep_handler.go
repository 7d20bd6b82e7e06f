package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/piyushrav1/realtime-whiteboard/internal/hub"
	"github.com/piyushrav1/realtime-whiteboard/internal/repository"
	"github.com/piyushrav1/realtime-whiteboard/internal/service"
	"github.com/piyushrav1/realtime-whiteboard/internal/tasks"
)

// SweepHandler deletes room documents that predate this process and that
// nobody came back for. The in-process reaper only covers rooms that had
// members since start; a crash leaves the rest for this task.
type SweepHandler struct {
	store  repository.RoomStore
	engine *service.RoomStateEngine
	hub    *hub.Hub
}

// NewSweepHandler creates the handler.
func NewSweepHandler(store repository.RoomStore, engine *service.RoomStateEngine, h *hub.Hub) *SweepHandler {
	if store == nil || engine == nil || h == nil {
		panic("store, engine and hub must be non-nil for SweepHandler")
	}
	return &SweepHandler{store: store, engine: engine, hub: h}
}

// ProcessTask implements asynq.Handler.
func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	var payload tasks.RoomSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("sweep: unmarshal payload: %w", err)
	}
	if payload.MaxAgeSeconds <= 0 {
		return fmt.Errorf("sweep: non-positive max age %d", payload.MaxAgeSeconds)
	}

	cutoff := time.Now().UTC().Add(-time.Duration(payload.MaxAgeSeconds) * time.Second)
	names, err := h.store.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweep: list stale rooms: %w", err)
	}
	if len(names) == 0 {
		logCtx.Debug("No stale rooms")
		return nil
	}

	swept := 0
	for _, name := range names {
		// Live occupancy or a pending reaper timer means the room is not
		// abandoned; the reaper owns its fate.
		if h.hub.MembersOf(name) > 0 || h.hub.Reaper().Armed(name) {
			continue
		}
		if err := h.engine.Destroy(ctx, name); err != nil {
			logCtx.WithField("room", name).WithError(err).Error("Sweep failed to destroy room")
			continue
		}
		h.hub.NotifyRoomDestroyed(name)
		swept++
	}
	logCtx.WithFields(logrus.Fields{"candidates": len(names), "swept": swept}).
		Info("Stale room sweep complete")
	return nil
}
