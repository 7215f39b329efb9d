package room

import "errors"

var (
	// ErrRoomNotFound is returned when no live snapshot exists for a code.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomNotJoinable is returned when joining a room that already started.
	ErrRoomNotJoinable = errors.New("room is not joinable")

	// ErrHostNotFound is returned when the creating host does not resolve.
	ErrHostNotFound = errors.New("host not found")
)
