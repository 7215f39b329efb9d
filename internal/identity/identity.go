// Package identity resolves player ids to display profiles. Guest
// login and token issuance are external; the engine only reads.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mkarlin14/quizroom/internal/models"
)

// ErrPlayerNotFound is returned when a player id does not resolve.
var ErrPlayerNotFound = errors.New("player not found")

// Resolver defines what the engine needs from the identity service.
type Resolver interface {
	ResolvePlayer(ctx context.Context, id uuid.UUID) (*models.PlayerProfile, error)
}
