package repository

import "errors"

var (
	// ErrNotFound means the requested room does not exist.
	ErrNotFound = errors.New("repository: record not found")

	// ErrRoomNotFound is the domain-specific alias for ErrNotFound.
	ErrRoomNotFound = ErrNotFound
)
