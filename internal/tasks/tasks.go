package tasks

import (
	"encoding/json"
)

// Task type constants.
const (
	// TypeRoomSweep deletes room documents abandoned across process restarts:
	// rooms whose reaper timer died with a previous run and that nobody has
	// touched since.
	TypeRoomSweep = "room:sweep"
)

// RoomSweepPayload parameterizes one sweep run.
type RoomSweepPayload struct {
	// MaxAgeSeconds is the minimum idle time before an unoccupied room is
	// considered abandoned.
	MaxAgeSeconds int64 `json:"max_age_seconds"`
}

// NewRoomSweepTask builds the serialized payload for a sweep task.
func NewRoomSweepTask(maxAgeSeconds int64) ([]byte, error) {
	payload := RoomSweepPayload{MaxAgeSeconds: maxAgeSeconds}
	return json.Marshal(payload)
}
