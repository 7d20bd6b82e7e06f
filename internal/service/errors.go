package service

import "errors"

var (
	// ErrRoomNotFound means a lookup targeted a room that does not exist.
	// Mutations never return this: a vanished room is a logged no-op.
	ErrRoomNotFound = errors.New("room not found")

	// ErrStoreUnavailable means the backing store could not be reached or
	// failed. Surfaced to the originating connection only.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidPayload means the operation payload violated the protocol
	// (missing id, unknown object type, odd point count, ...).
	ErrInvalidPayload = errors.New("invalid payload")
)
