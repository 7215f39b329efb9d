// Package catalog is the question-catalog collaborator. The engine
// only ever reads from it; authoring and SEO surfaces live elsewhere.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mkarlin14/quizroom/internal/models"
)

// ErrQuestionNotFound is returned when a question id does not resolve.
var ErrQuestionNotFound = errors.New("question not found")

// Filter narrows the question pool a game draws from. Empty slices
// mean "any".
type Filter struct {
	CategoryIDs  []uuid.UUID
	Difficulties []string
}

// Catalog defines what the engine needs from the question catalog.
// Implementations must only return active questions; correctness flags
// stay server-side and are stripped before any broadcast.
type Catalog interface {
	SelectQuestions(ctx context.Context, filter Filter) ([]models.Question, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}
