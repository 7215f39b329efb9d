// Package room implements the room lifecycle manager: creating rooms,
// admitting players, and exposing read-only snapshots.
package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/bus"
	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/identity"
	"github.com/mkarlin14/quizroom/internal/livestore"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/roomcode"
	"github.com/mkarlin14/quizroom/internal/roomlock"
)

// maxCodeAttempts bounds the collision-retry loop for code generation.
const maxCodeAttempts = 5

// RoomRepository defines what the app layer needs from durable storage.
// All writes here are best-effort relative to the live snapshot.
type RoomRepository interface {
	CreateRoom(ctx context.Context, params CreateRoomParams) error
	AddRoomPlayer(ctx context.Context, roomID, playerID uuid.UUID, displayName string) error
}

// App handles room lifecycle operations.
type App struct {
	store    livestore.Store
	repo     RoomRepository
	identity identity.Resolver
	codes    *roomcode.Generator
	locks    *roomlock.Registry
	bus      bus.Bus
	clock    clockwork.Clock
}

// NewApp creates a room lifecycle App.
func NewApp(store livestore.Store, repo RoomRepository, resolver identity.Resolver, codes *roomcode.Generator, locks *roomlock.Registry, eventBus bus.Bus, clock clockwork.Clock) *App {
	return &App{
		store:    store,
		repo:     repo,
		identity: resolver,
		codes:    codes,
		locks:    locks,
		bus:      eventBus,
		clock:    clock,
	}
}

// CreateRoomRequest carries the settings a host creates a room with.
type CreateRoomRequest struct {
	HostPlayerID     uuid.UUID
	HostParticipates bool
	Settings         models.RoomSettings
}

// CreateRoom generates an unused code, persists the durable room
// record, and seeds a lobby snapshot with the host as sole player.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.RoomSnapshot, error) {
	host, err := a.identity.ResolvePlayer(ctx, req.HostPlayerID)
	if err != nil {
		if errors.Is(err, identity.ErrPlayerNotFound) {
			return nil, ErrHostNotFound
		}
		return nil, fmt.Errorf("failed to resolve host: %w", err)
	}

	code, err := a.reserveCode(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &models.RoomSnapshot{
		RoomCode:             code,
		RoomID:               uuid.New(),
		HostPlayerID:         req.HostPlayerID,
		HostParticipates:     req.HostParticipates,
		Status:               models.RoomStatusLobby,
		Settings:             req.Settings,
		Players: map[uuid.UUID]models.RoomPlayer{
			req.HostPlayerID: {DisplayName: host.DisplayName},
		},
		CurrentQuestionIndex: -1,
		CreatedAt:            a.clock.Now().UTC(),
	}

	// Durable record is best-effort; the snapshot is authoritative for
	// the live session.
	if err := a.repo.CreateRoom(ctx, CreateRoomParams{
		ID:           snapshot.RoomID,
		Code:         code,
		HostPlayerID: req.HostPlayerID,
		Settings:     req.Settings,
	}); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to persist durable room record")
	} else if err := a.repo.AddRoomPlayer(ctx, snapshot.RoomID, req.HostPlayerID, host.DisplayName); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to persist host player row")
	}

	if err := a.store.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save room snapshot: %w", err)
	}

	log.Info().
		Str("room_code", code).
		Str("host_player_id", req.HostPlayerID.String()).
		Int("question_count", req.Settings.QuestionCount).
		Msg("room created")

	return snapshot, nil
}

// JoinRoom admits a player into a lobby. Re-joining is idempotent and
// returns the current snapshot without mutation.
func (a *App) JoinRoom(ctx context.Context, code string, playerID uuid.UUID) (*models.RoomSnapshot, error) {
	code = roomcode.Normalize(code)

	profile, err := a.identity.ResolvePlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, identity.ErrPlayerNotFound) {
			return nil, identity.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to resolve player: %w", err)
	}

	release := a.locks.Acquire(code)

	snapshot, err := a.store.Get(ctx, code)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	if snapshot == nil {
		release()
		return nil, ErrRoomNotFound
	}

	if snapshot.IsMember(playerID) {
		release()
		return snapshot, nil
	}

	if snapshot.Status != models.RoomStatusLobby {
		release()
		return nil, ErrRoomNotJoinable
	}

	snapshot.Players[playerID] = models.RoomPlayer{DisplayName: profile.DisplayName}

	if err := a.store.Save(ctx, snapshot); err != nil {
		release()
		return nil, fmt.Errorf("failed to save room snapshot: %w", err)
	}

	// Published before release so concurrent joins announce their
	// player counts in admission order.
	ev, err := events.New(code, events.KindPlayerJoined, a.clock.Now(), events.PlayerJoinedPayload{
		PlayerID:    playerID.String(),
		DisplayName: profile.DisplayName,
		PlayerCount: len(snapshot.Players),
	})
	if err == nil {
		if err := a.bus.Publish(ctx, ev); err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to publish player_joined")
		}
	}
	release()

	if err := a.repo.AddRoomPlayer(ctx, snapshot.RoomID, playerID, profile.DisplayName); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to persist room player row")
	}

	log.Info().
		Str("room_code", code).
		Str("player_id", playerID.String()).
		Int("players", len(snapshot.Players)).
		Msg("player joined room")

	return snapshot, nil
}

// GetRoomState is a pure read of the live snapshot, nil when absent.
func (a *App) GetRoomState(ctx context.Context, code string) (*models.RoomSnapshot, error) {
	return a.store.Get(ctx, roomcode.Normalize(code))
}

func (a *App) reserveCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := a.codes.Next()
		exists, err := a.store.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check room code: %w", err)
		}
		if !exists {
			return code, nil
		}
		log.Debug().Str("room_code", code).Msg("room code collision, retrying")
	}
	return "", fmt.Errorf("failed to generate unused room code after %d attempts", maxCodeAttempts)
}
