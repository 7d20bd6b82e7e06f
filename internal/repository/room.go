package repository

import (
	"context"
	"time"

	"github.com/piyushrav1/realtime-whiteboard/internal/domain"
)

// RoomStore defines the durable storage operations the room state engine
// issues. Every mutation must be atomic within the store; object-level
// mutations are addressed by (room name, object id) and must never be
// implemented as a read-modify-write of the whole room document.
//
// Mutations that target a specific document or array element return a matched
// flag instead of an error when the target does not exist: a vanished room or
// stale object id is an expected race, not a failure.
type RoomStore interface {
	// JoinOrCreate atomically fetches the room, creating it empty first if it
	// does not exist. Concurrent calls for a fresh name must yield exactly one
	// room document.
	JoinOrCreate(ctx context.Context, name string) (*domain.Room, error)

	// Find returns the room, or ErrNotFound.
	Find(ctx context.Context, name string) (*domain.Room, error)

	// InsertObject appends the object to the room's object sequence.
	InsertObject(ctx context.Context, name string, obj domain.DrawingObject) (bool, error)

	// AppendLinePoints appends coordinates to the matching line object's point
	// sequence. Matches only objects of type "line".
	AppendLinePoints(ctx context.Context, name, objectID string, points []float64) (bool, error)

	// ReplaceObject overwrites the matching object wholesale with final.
	ReplaceObject(ctx context.Context, name, objectID string, final domain.DrawingObject) (bool, error)

	// MergeObjectAttributes sets each patch field on the matching object,
	// leaving unnamed fields untouched.
	MergeObjectAttributes(ctx context.Context, name, objectID string, patch map[string]any) (bool, error)

	// ClearObjects empties the room's object sequence. The chat log is kept.
	ClearObjects(ctx context.Context, name string) (bool, error)

	// AppendChatMessage appends to the room's chat log.
	AppendChatMessage(ctx context.Context, name string, msg domain.ChatMessage) (bool, error)

	// Delete removes the room document. Deleting an absent room is not an
	// error.
	Delete(ctx context.Context, name string) error

	// ListStale returns the names of rooms whose last mutation predates
	// olderThan. Used by the background sweep for rooms abandoned across
	// process restarts.
	ListStale(ctx context.Context, olderThan time.Time) ([]string, error)
}
