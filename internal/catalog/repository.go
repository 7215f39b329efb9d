package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mkarlin14/quizroom/internal/models"
)

// DBTX is the slice of pgxpool.Pool the repository uses, kept as an
// interface so tests can stub it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads questions and options from Postgres.
type Repository struct {
	db DBTX
}

var _ Catalog = (*Repository)(nil)

// NewRepository creates a catalog repository.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

const selectQuestionsQuery = `
SELECT id, category_id, difficulty, text, time_limit_sec
FROM questions
WHERE is_active
  AND (cardinality($1::uuid[]) = 0 OR category_id = ANY($1::uuid[]))
  AND (cardinality($2::text[]) = 0 OR difficulty = ANY($2::text[]))
`

// SelectQuestions returns the full active pool matching the filter.
// Sampling and ordering happen in the session layer against the
// injected randomness source.
func (r *Repository) SelectQuestions(ctx context.Context, filter Filter) ([]models.Question, error) {
	categoryIDs := filter.CategoryIDs
	if categoryIDs == nil {
		categoryIDs = []uuid.UUID{}
	}
	difficulties := filter.Difficulties
	if difficulties == nil {
		difficulties = []string{}
	}

	rows, err := r.db.Query(ctx, selectQuestionsQuery, categoryIDs, difficulties)
	if err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.CategoryID, &q.Difficulty, &q.Text, &q.TimeLimitSec); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	for i := range questions {
		opts, err := r.optionsForQuestion(ctx, questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Options = opts
	}

	return questions, nil
}

const getQuestionQuery = `
SELECT id, category_id, difficulty, text, time_limit_sec
FROM questions
WHERE id = $1 AND is_active
`

// GetQuestion fetches one question with its options.
func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	var q models.Question
	err := r.db.QueryRow(ctx, getQuestionQuery, id).
		Scan(&q.ID, &q.CategoryID, &q.Difficulty, &q.Text, &q.TimeLimitSec)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question %s: %w", id, err)
	}

	opts, err := r.optionsForQuestion(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Options = opts

	return &q, nil
}

const optionsQuery = `
SELECT id, text, is_correct
FROM question_options
WHERE question_id = $1
ORDER BY position
`

func (r *Repository) optionsForQuestion(ctx context.Context, questionID uuid.UUID) ([]models.Option, error) {
	rows, err := r.db.Query(ctx, optionsQuery, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select options for question %s: %w", questionID, err)
	}
	defer rows.Close()

	var options []models.Option
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.Text, &o.IsCorrect); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate options: %w", err)
	}

	return options, nil
}
