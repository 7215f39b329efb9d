package identity

import (
	"context"
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

// Repository resolves players from Postgres.
type Repository struct {
	db DBTX
}

var _ Resolver = (*Repository)(nil)

// NewRepository creates an identity repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const resolvePlayerQuery = `
SELECT id, display_name
FROM players
WHERE id = $1
`

func (r *Repository) ResolvePlayer(ctx context.Context, id uuid.UUID) (*models.PlayerProfile, error) {
	var p models.PlayerProfile
	err := r.db.QueryRow(ctx, resolvePlayerQuery, id).Scan(&p.ID, &p.DisplayName)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to resolve player %s: %w", id, err)
	}
	return &p, nil
}
