// Package livestore holds the mutable per-room snapshot during an
// active game. It is the only shared state in the engine; everything
// else is derived from it or persisted best-effort.
package livestore

import (
	"context"

	"github.com/mkarlin14/quizroom/internal/models"
)

// Store is the pluggable backing for live room snapshots, keyed by
// room code. Save has full-replace, last-writer-wins semantics; the
// session layer serializes conflicting writers with the per-room lock
// before calling it, so no optimistic versioning is needed.
//
// Get returns (nil, nil) when no snapshot exists for the code.
type Store interface {
	Get(ctx context.Context, roomCode string) (*models.RoomSnapshot, error)
	Save(ctx context.Context, snapshot *models.RoomSnapshot) error
	Delete(ctx context.Context, roomCode string) error
	Exists(ctx context.Context, roomCode string) (bool, error)
}
