// Package answer persists the append-only answer records used for
// post-game archival. Writes are best-effort relative to the live
// snapshot, which stays the source of truth during an active game.
package answer

import (
	"context"
	"fmt"

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

// Repository appends answer rows to Postgres.
type Repository struct {
	db DBTX
}

// NewRepository creates an answer repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const appendAnswerQuery = `
INSERT INTO answers (
  id, room_id, player_id, question_id, option_id,
  is_correct, is_first_correct, answered_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// AppendAnswer writes one answer record.
func (r *Repository) AppendAnswer(ctx context.Context, rec models.AnswerRecord) error {
	_, err := r.db.Exec(ctx, appendAnswerQuery,
		rec.ID, rec.RoomID, rec.PlayerID, rec.QuestionID, rec.OptionID,
		rec.IsCorrect, rec.IsFirstCorrect, rec.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append answer for player %s: %w", rec.PlayerID, err)
	}
	return nil
}
