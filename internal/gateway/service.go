package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/bus"
	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
)

// RoomService is the room lifecycle surface the gateway drives.
type RoomService interface {
	CreateRoom(ctx context.Context, req room.CreateRoomRequest) (*models.RoomSnapshot, error)
	JoinRoom(ctx context.Context, code string, playerID uuid.UUID) (*models.RoomSnapshot, error)
	GetRoomState(ctx context.Context, code string) (*models.RoomSnapshot, error)
}

// SessionService is the in-game surface the gateway drives.
type SessionService interface {
	StartGame(ctx context.Context, code string, requesterID uuid.UUID) ([]models.QuestionView, error)
	SubmitAnswer(ctx context.Context, code string, questionID, playerID, optionID uuid.UUID) (*models.AnswerOutcome, error)
	EndQuestion(ctx context.Context, code string, questionID uuid.UUID, reason events.EndReason) error
	GetLeaderboard(ctx context.Context, code string) ([]models.LeaderboardEntry, error)
}

// QuestionReader resolves the current question for snapshot sync.
type QuestionReader interface {
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

// Config holds gateway-level settings.
type Config struct {
	// JoinBaseURL is the public URL prefix encoded into join QR codes,
	// e.g. "https://quiz.example.com/join".
	JoinBaseURL string
}

// Service bridges the event bus and HTTP/WebSocket clients.
type Service struct {
	manager   *ConnectionManager
	rooms     RoomService
	sessions  SessionService
	questions QuestionReader
	eventBus  bus.Bus
	clock     clockwork.Clock
	config    Config
}

// NewService creates the gateway service.
func NewService(manager *ConnectionManager, rooms RoomService, sessions SessionService, questions QuestionReader, eventBus bus.Bus, clock clockwork.Clock, config Config) *Service {
	return &Service{
		manager:   manager,
		rooms:     rooms,
		sessions:  sessions,
		questions: questions,
		eventBus:  eventBus,
		clock:     clock,
		config:    config,
	}
}

// Start runs the broadcast loop and routes bus events to sockets until
// the context is canceled.
func (s *Service) Start(ctx context.Context) error {
	unsubscribe, err := s.eventBus.Subscribe(func(_ context.Context, ev *events.Envelope) {
		s.manager.Dispatch(ev)
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	log.Info().Msg("gateway service started")
	s.manager.Start(ctx)
	return nil
}

// HandleWebSocket upgrades the request and starts the command loop for
// the connecting player. The player identifies via the player_id query
// parameter.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	playerID, err := uuid.Parse(r.URL.Query().Get("player_id"))
	if err != nil {
		http.Error(w, "valid player_id query parameter required", http.StatusBadRequest)
		return
	}

	if _, err := s.manager.Upgrade(w, r, playerID, s.handleClientMessage); err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
	}
}
