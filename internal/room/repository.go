package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkarlin14/quizroom/internal/models"
)

// DBTX is the slice of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists the durable room and room_player rows that
// outlive the live snapshot.
type Repository struct {
	db DBTX
}

// NewRepository creates a room repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// CreateRoomParams is the durable record created alongside a snapshot.
type CreateRoomParams struct {
	ID           uuid.UUID
	Code         string
	HostPlayerID uuid.UUID
	Settings     models.RoomSettings
}

const createRoomQuery = `
INSERT INTO rooms (id, code, host_player_id, status, settings)
VALUES ($1, $2, $3, $4, $5)
`

// CreateRoom inserts the durable room record.
func (r *Repository) CreateRoom(ctx context.Context, params CreateRoomParams) error {
	settings, err := json.Marshal(params.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal room settings: %w", err)
	}

	_, err = r.db.Exec(ctx, createRoomQuery,
		params.ID, params.Code, params.HostPlayerID, models.RoomStatusLobby, settings,
	)
	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", params.Code, err)
	}
	return nil
}

const addRoomPlayerQuery = `
INSERT INTO room_players (room_id, player_id, display_name, score)
VALUES ($1, $2, $3, 0)
ON CONFLICT (room_id, player_id) DO NOTHING
`

// AddRoomPlayer inserts the durable score row for a joining player.
func (r *Repository) AddRoomPlayer(ctx context.Context, roomID, playerID uuid.UUID, displayName string) error {
	_, err := r.db.Exec(ctx, addRoomPlayerQuery, roomID, playerID, displayName)
	if err != nil {
		return fmt.Errorf("failed to add player %s to room %s: %w", playerID, roomID, err)
	}
	return nil
}

const updateRoomStatusQuery = `
UPDATE rooms SET status = $2, updated_at = NOW() WHERE id = $1
`

// UpdateRoomStatus mirrors a lifecycle transition to the durable row.
func (r *Repository) UpdateRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error {
	_, err := r.db.Exec(ctx, updateRoomStatusQuery, roomID, status)
	if err != nil {
		return fmt.Errorf("failed to update room %s status: %w", roomID, err)
	}
	return nil
}

const updatePlayerScoreQuery = `
UPDATE room_players SET score = $3 WHERE room_id = $1 AND player_id = $2
`

// UpdatePlayerScore mirrors a live score to the durable row.
func (r *Repository) UpdatePlayerScore(ctx context.Context, roomID, playerID uuid.UUID, score int) error {
	_, err := r.db.Exec(ctx, updatePlayerScoreQuery, roomID, playerID, score)
	if err != nil {
		return fmt.Errorf("failed to update score for player %s: %w", playerID, err)
	}
	return nil
}
