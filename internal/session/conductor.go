// Package session implements the session conductor: question
// selection and progression, the answer-admission protocol, scoring,
// and the per-question timeout timers.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/bus"
	"github.com/mkarlin14/quizroom/internal/catalog"
	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/livestore"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
	"github.com/mkarlin14/quizroom/internal/roomcode"
	"github.com/mkarlin14/quizroom/internal/roomlock"
)

// Config holds the conductor's timing knobs.
type Config struct {
	// TimerBuffer is added to each question's time limit before the
	// timeout timer force-ends it, absorbing client clock skew.
	TimerBuffer time.Duration
	// RevealDelay is the pause between question-ended and the next
	// question, long enough for clients to show the correct answer.
	RevealDelay time.Duration
	// FinishedGrace is how long a terminal snapshot stays readable so
	// reconnecting clients can render a results screen.
	FinishedGrace time.Duration
	// RetryInterval re-arms a timer after a failed timer-driven action.
	RetryInterval time.Duration
}

// DefaultConfig returns production timing defaults.
func DefaultConfig() Config {
	return Config{
		TimerBuffer:   time.Second,
		RevealDelay:   5 * time.Second,
		FinishedGrace: 5 * time.Minute,
		RetryInterval: 2 * time.Second,
	}
}

// ScoreRepository defines what the conductor needs from durable room
// storage. Writes are best-effort relative to the live snapshot.
type ScoreRepository interface {
	UpdateRoomStatus(ctx context.Context, roomID uuid.UUID, status models.RoomStatus) error
	UpdatePlayerScore(ctx context.Context, roomID, playerID uuid.UUID, score int) error
}

// AnswerRepository appends the durable answer records.
type AnswerRepository interface {
	AppendAnswer(ctx context.Context, rec models.AnswerRecord) error
}

// Conductor drives question progression and answer admission for all
// rooms. All snapshot mutation happens under the per-room lock, held
// across the in-memory decision, the persist, and the bus enqueue, so
// a room's events are published in mutation order. Socket writes stay
// asynchronous behind the bus; the lock never waits on a client.
type Conductor struct {
	store   livestore.Store
	catalog catalog.Catalog
	scores  ScoreRepository
	answers AnswerRepository
	locks   *roomlock.Registry
	bus     bus.Bus
	clock   clockwork.Clock
	config  Config

	rngMu sync.Mutex
	rng   *rand.Rand

	// Pending timeout timers keyed by room code (one per room: at most
	// one question is current at a time).
	timersMu sync.Mutex
	timers   map[string]clockwork.Timer

	runMu  sync.RWMutex
	runCtx context.Context
}

// NewConductor creates a session conductor.
func NewConductor(store livestore.Store, cat catalog.Catalog, scores ScoreRepository, answers AnswerRepository, locks *roomlock.Registry, eventBus bus.Bus, clock clockwork.Clock, rng *rand.Rand, config Config) *Conductor {
	return &Conductor{
		store:   store,
		catalog: cat,
		scores:  scores,
		answers: answers,
		locks:   locks,
		bus:     eventBus,
		clock:   clock,
		config:  config,
		rng:     rng,
		timers:  make(map[string]clockwork.Timer),
		runCtx:  context.Background(),
	}
}

// Start binds the conductor's background timers to ctx. Timers spawned
// before Start use context.Background.
func (c *Conductor) Start(ctx context.Context) {
	c.runMu.Lock()
	c.runCtx = ctx
	c.runMu.Unlock()
}

// runContext returns the context background timers run under. Timer
// goroutines read it concurrently with Start.
func (c *Conductor) runContext() context.Context {
	c.runMu.RLock()
	defer c.runMu.RUnlock()
	return c.runCtx
}

// StartGame transitions a lobby to RUNNING: fixes the question order
// from the filtered catalog pool and broadcasts the opening events.
// Returns the selected questions with answer-bearing fields stripped.
func (c *Conductor) StartGame(ctx context.Context, code string, requesterID uuid.UUID) ([]models.QuestionView, error) {
	code = roomcode.Normalize(code)

	snapshot, err := c.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, room.ErrRoomNotFound
	}
	if snapshot.HostPlayerID != requesterID {
		return nil, ErrForbidden
	}
	if snapshot.Status != models.RoomStatusLobby {
		return nil, ErrGameAlreadyStarted
	}

	pool, err := c.catalog.SelectQuestions(ctx, catalog.Filter{
		CategoryIDs:  snapshot.Settings.CategoryIDs,
		Difficulties: snapshot.Settings.Difficulties,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select questions: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	selected := c.sample(pool, snapshot.Settings.QuestionCount)
	order := make([]uuid.UUID, len(selected))
	views := make([]models.QuestionView, len(selected))
	for i, q := range selected {
		order[i] = q.ID
		views[i] = q.View()
	}

	release := c.locks.Acquire(code)
	snapshot, err = c.store.Get(ctx, code)
	if err != nil || snapshot == nil {
		release()
		if err != nil {
			return nil, fmt.Errorf("failed to load room snapshot: %w", err)
		}
		return nil, room.ErrRoomNotFound
	}
	if snapshot.Status != models.RoomStatusLobby {
		release()
		return nil, ErrGameAlreadyStarted
	}

	snapshot.Status = models.RoomStatusRunning
	snapshot.QuestionOrder = order
	snapshot.CurrentQuestionIndex = -1
	snapshot.CurrentQuestionID = uuid.Nil

	if err := c.store.Save(ctx, snapshot); err != nil {
		release()
		return nil, fmt.Errorf("failed to save room snapshot: %w", err)
	}

	c.emit(ctx, code, events.KindGameStarted, events.GameStartedPayload{
		RoomCode:      code,
		QuestionCount: len(order),
		StartedAt:     c.clock.Now().UTC(),
	})
	release()

	if err := c.scores.UpdateRoomStatus(ctx, snapshot.RoomID, models.RoomStatusRunning); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to persist room status")
	}

	log.Info().
		Str("room_code", code).
		Int("questions", len(order)).
		Msg("game started")

	// The first question becomes current through the same advancement
	// path as every later one. A transient failure here must not strand
	// the room in RUNNING with no current question, so it re-arms the
	// advance timer instead of giving up.
	if _, err := c.AdvanceQuestion(ctx, code); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to advance to first question, retrying")
		c.scheduleAdvanceIn(code, c.config.RetryInterval)
	}

	return views, nil
}

// AdvanceQuestion moves the room to the next question. It is the sole
// place a question becomes current. A nil view with nil error means
// there were no more questions and the game is now finished.
func (c *Conductor) AdvanceQuestion(ctx context.Context, code string) (*models.QuestionView, error) {
	code = roomcode.Normalize(code)

	// Question content is immutable, so it is fetched before taking the
	// room lock; the lock covers the decision, persist, and bus enqueue.
	snapshot, err := c.store.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, room.ErrRoomNotFound
	}
	if snapshot.Status != models.RoomStatusRunning {
		return nil, ErrRoomNotRunning
	}

	nextIndex := snapshot.CurrentQuestionIndex + 1

	var question *models.Question
	if nextIndex < len(snapshot.QuestionOrder) {
		question, err = c.catalog.GetQuestion(ctx, snapshot.QuestionOrder[nextIndex])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch question %s: %w", snapshot.QuestionOrder[nextIndex], err)
		}
	}

	release := c.locks.Acquire(code)
	snapshot, err = c.store.Get(ctx, code)
	if err != nil || snapshot == nil {
		release()
		if err != nil {
			return nil, fmt.Errorf("failed to load room snapshot: %w", err)
		}
		return nil, room.ErrRoomNotFound
	}
	if snapshot.Status != models.RoomStatusRunning {
		release()
		return nil, ErrRoomNotRunning
	}
	if snapshot.CurrentQuestionIndex+1 != nextIndex {
		// Another advancer won the race; nothing to do.
		release()
		return nil, ErrQuestionNotCurrent
	}

	if nextIndex >= len(snapshot.QuestionOrder) {
		now := c.clock.Now().UTC()
		snapshot.Status = models.RoomStatusFinished
		snapshot.CurrentQuestionIndex = nextIndex
		snapshot.CurrentQuestionID = uuid.Nil
		snapshot.FinishedAt = &now

		if err := c.store.Save(ctx, snapshot); err != nil {
			release()
			return nil, fmt.Errorf("failed to save room snapshot: %w", err)
		}

		c.emit(ctx, code, events.KindGameEnded, events.GameEndedPayload{
			RoomCode:    code,
			Leaderboard: leaderboard(snapshot),
			FinishedAt:  now,
		})
		release()

		c.cancelQuestionTimer(code)

		if err := c.scores.UpdateRoomStatus(ctx, snapshot.RoomID, models.RoomStatusFinished); err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to persist room status")
		}

		c.scheduleEviction(code)

		log.Info().Str("room_code", code).Msg("game ended")
		return nil, nil
	}

	startedAt := c.clock.Now().UTC()
	snapshot.CurrentQuestionIndex = nextIndex
	snapshot.CurrentQuestionID = question.ID
	snapshot.AnsweredPlayers = make(map[uuid.UUID]bool)
	snapshot.FirstCorrectPlayerID = uuid.Nil
	snapshot.QuestionStartedAt = startedAt

	limit := time.Duration(question.TimeLimitSec) * time.Second
	view := question.View()

	if err := c.store.Save(ctx, snapshot); err != nil {
		release()
		return nil, fmt.Errorf("failed to save room snapshot: %w", err)
	}

	// Published before release so no submitter admitted against this
	// question can get its scores_updated out ahead of new_question.
	c.emit(ctx, code, events.KindNewQuestion, events.NewQuestionPayload{
		Question:  view,
		Index:     nextIndex,
		Total:     len(snapshot.QuestionOrder),
		StartedAt: startedAt,
		EndsAt:    startedAt.Add(limit),
	})
	release()

	c.scheduleQuestionTimeout(code, question.ID, limit+c.config.TimerBuffer)

	log.Info().
		Str("room_code", code).
		Str("question_id", question.ID.String()).
		Int("index", nextIndex).
		Msg("question advanced")

	return &view, nil
}

// SubmitAnswer admits one player's answer to the current question.
// This is the concurrency-critical operation: the per-room lock makes
// the read-check-mutate-persist atomic from the room's point of view,
// so "first correct" is well defined under simultaneous submissions.
func (c *Conductor) SubmitAnswer(ctx context.Context, code string, questionID, playerID, optionID uuid.UUID) (*models.AnswerOutcome, error) {
	code = roomcode.Normalize(code)

	question, err := c.catalog.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, catalog.ErrQuestionNotFound) {
			return nil, ErrQuestionNotCurrent
		}
		return nil, fmt.Errorf("failed to fetch question %s: %w", questionID, err)
	}
	option, ok := question.OptionByID(optionID)
	if !ok {
		return nil, ErrOptionNotFound
	}

	release := c.locks.Acquire(code)

	snapshot, err := c.store.Get(ctx, code)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	if snapshot == nil {
		release()
		return nil, room.ErrRoomNotFound
	}
	if snapshot.Status != models.RoomStatusRunning {
		release()
		return nil, ErrRoomNotRunning
	}
	if snapshot.CurrentQuestionID != questionID {
		release()
		return nil, ErrQuestionNotCurrent
	}
	if !snapshot.IsMember(playerID) || (playerID == snapshot.HostPlayerID && !snapshot.HostParticipates) {
		release()
		return nil, ErrForbidden
	}
	if snapshot.HasAnswered(playerID) {
		release()
		return nil, ErrAlreadyAnswered
	}

	delta := 0
	isFirstCorrect := false
	if option.IsCorrect {
		if snapshot.FirstCorrectPlayerID == uuid.Nil {
			delta = 1
			isFirstCorrect = true
			snapshot.FirstCorrectPlayerID = playerID
		}
	} else {
		delta = -1
	}

	player := snapshot.Players[playerID]
	player.Score += delta
	snapshot.Players[playerID] = player

	if snapshot.AnsweredPlayers == nil {
		snapshot.AnsweredPlayers = make(map[uuid.UUID]bool)
	}
	snapshot.AnsweredPlayers[playerID] = true

	allAnswered := snapshot.FirstCorrectPlayerID == uuid.Nil &&
		len(snapshot.AnsweredPlayers) >= snapshot.ExpectedResponders()

	if err := c.store.Save(ctx, snapshot); err != nil {
		release()
		return nil, fmt.Errorf("failed to save room snapshot: %w", err)
	}

	outcome := &models.AnswerOutcome{
		QuestionID:     questionID,
		OptionID:       optionID,
		IsCorrect:      option.IsCorrect,
		DeltaScore:     delta,
		UpdatedScore:   player.Score,
		IsFirstCorrect: isFirstCorrect,
		AllAnswered:    allAnswered,
	}

	// Enqueued before release so two racing submitters cannot publish
	// their leaderboards out of order.
	c.emitUnicast(ctx, code, events.KindAnswerResult, playerID, events.AnswerResultPayload{Outcome: *outcome})
	c.emit(ctx, code, events.KindScoresUpdated, events.ScoresUpdatedPayload{
		Leaderboard:   leaderboard(snapshot),
		AnsweredCount: len(snapshot.AnsweredPlayers),
	})
	release()

	answeredAt := c.clock.Now().UTC()
	if err := c.answers.AppendAnswer(ctx, models.AnswerRecord{
		ID:             uuid.New(),
		RoomID:         snapshot.RoomID,
		PlayerID:       playerID,
		QuestionID:     questionID,
		OptionID:       optionID,
		IsCorrect:      option.IsCorrect,
		IsFirstCorrect: isFirstCorrect,
		AnsweredAt:     answeredAt,
	}); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to append answer record")
	}
	if err := c.scores.UpdatePlayerScore(ctx, snapshot.RoomID, playerID, player.Score); err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to persist player score")
	}

	return outcome, nil
}

// EndQuestion closes the current question: it stops admitting answers,
// reveals the correct option, and schedules the next advance. Callers
// racing a stale end (timeout after manual end, double early-end) get
// ErrQuestionNotCurrent and must treat it as a no-op.
func (c *Conductor) EndQuestion(ctx context.Context, code string, questionID uuid.UUID, reason events.EndReason) error {
	code = roomcode.Normalize(code)

	// Question content is immutable; fetched before the lock so the
	// reveal rides the question_ended event without holding the lock
	// across a catalog read.
	correctOptionID := ""
	if question, err := c.catalog.GetQuestion(ctx, questionID); err != nil {
		log.Error().Err(err).Str("question_id", questionID.String()).Msg("failed to fetch question for reveal")
	} else if id := question.CorrectOptionID(); id != uuid.Nil {
		correctOptionID = id.String()
	}

	release := c.locks.Acquire(code)

	snapshot, err := c.store.Get(ctx, code)
	if err != nil {
		release()
		return fmt.Errorf("failed to load room snapshot: %w", err)
	}
	if snapshot == nil {
		release()
		return room.ErrRoomNotFound
	}
	if snapshot.Status != models.RoomStatusRunning {
		release()
		return ErrRoomNotRunning
	}
	if snapshot.CurrentQuestionID != questionID {
		release()
		return ErrQuestionNotCurrent
	}

	// Clearing the current-question id closes the admission window;
	// the index is untouched so advancement picks up where it left off.
	snapshot.CurrentQuestionID = uuid.Nil

	if err := c.store.Save(ctx, snapshot); err != nil {
		release()
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}

	c.emit(ctx, code, events.KindQuestionEnded, events.QuestionEndedPayload{
		QuestionID:      questionID.String(),
		CorrectOptionID: correctOptionID,
		Reason:          reason,
		Leaderboard:     leaderboard(snapshot),
	})
	release()

	c.cancelQuestionTimer(code)

	c.scheduleAdvanceIn(code, c.config.RevealDelay)

	log.Info().
		Str("room_code", code).
		Str("question_id", questionID.String()).
		Str("reason", string(reason)).
		Msg("question ended")

	return nil
}

// GetLeaderboard returns players ordered by score descending, ties
// broken by display name ascending.
func (c *Conductor) GetLeaderboard(ctx context.Context, code string) ([]models.LeaderboardEntry, error) {
	snapshot, err := c.store.Get(ctx, roomcode.Normalize(code))
	if err != nil {
		return nil, fmt.Errorf("failed to load room snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, room.ErrRoomNotFound
	}
	return leaderboard(snapshot), nil
}

// sample picks count questions from the pool with the injected
// randomness source. A pool smaller than count yields the whole pool.
func (c *Conductor) sample(pool []models.Question, count int) []models.Question {
	if count <= 0 || count > len(pool) {
		count = len(pool)
	}

	c.rngMu.Lock()
	c.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	c.rngMu.Unlock()

	return pool[:count]
}

func (c *Conductor) emit(ctx context.Context, code string, kind events.Kind, payload any) {
	ev, err := events.New(code, kind, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to build event")
		return
	}
	if err := c.bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("room_code", code).Str("kind", string(kind)).Msg("failed to publish event")
	}
}

func (c *Conductor) emitUnicast(ctx context.Context, code string, kind events.Kind, target uuid.UUID, payload any) {
	ev, err := events.NewUnicast(code, kind, target, c.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to build event")
		return
	}
	if err := c.bus.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("room_code", code).Str("kind", string(kind)).Msg("failed to publish event")
	}
}

// leaderboard orders scored players by score descending, then display
// name ascending, then id for a strict total order. A host that does
// not participate is excluded.
func leaderboard(s *models.RoomSnapshot) []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(s.Players))
	for id, p := range s.Players {
		if id == s.HostPlayerID && !s.HostParticipates {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			PlayerID:    id,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].PlayerID.String() < entries[j].PlayerID.String()
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
