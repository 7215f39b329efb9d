package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/catalog"
	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/identity"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
	"github.com/mkarlin14/quizroom/internal/roomcode"
	"github.com/mkarlin14/quizroom/internal/session"
)

// Client commands carried over the socket.
const (
	ActionJoinRoomChannel  = "join_room_channel"
	ActionLeaveRoomChannel = "leave_room_channel"
	ActionStartGame        = "start_game"
	ActionSubmitAnswer     = "submit_answer"
	ActionEndQuestion      = "end_question"
)

const commandTimeout = 10 * time.Second

// Command is the wire shape of a client-to-server message.
type Command struct {
	Action     string `json:"action"`
	RoomCode   string `json:"room_code,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	OptionID   string `json:"option_id,omitempty"`
}

// handleClientMessage dispatches one inbound frame. Failures go back
// to the sending socket only, as an error event.
func (s *Service) handleClientMessage(conn *Connection, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.sendError(conn, "", "bad_request", "malformed command")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	code := roomcode.Normalize(cmd.RoomCode)

	log.Debug().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID.String()).
		Str("action", cmd.Action).
		Str("room_code", code).
		Msg("client command received")

	switch cmd.Action {
	case ActionJoinRoomChannel:
		s.handleJoinRoomChannel(ctx, conn, code)
	case ActionLeaveRoomChannel:
		s.manager.Unsubscribe(conn)
	case ActionStartGame:
		s.handleStartGame(ctx, conn, code)
	case ActionSubmitAnswer:
		s.handleSubmitAnswer(ctx, conn, code, cmd)
	case ActionEndQuestion:
		s.handleEndQuestion(ctx, conn, code, cmd)
	default:
		s.sendError(conn, code, "bad_request", "unknown action: "+cmd.Action)
	}
}

// handleJoinRoomChannel subscribes the socket to a room topic and
// replies with a full state sync so reconnecting clients catch up.
func (s *Service) handleJoinRoomChannel(ctx context.Context, conn *Connection, code string) {
	snapshot, err := s.rooms.GetRoomState(ctx, code)
	if err != nil {
		s.sendServiceError(conn, code, err)
		return
	}
	if snapshot == nil {
		s.sendServiceError(conn, code, room.ErrRoomNotFound)
		return
	}

	s.manager.Subscribe(conn, code)

	payload := events.RoomSnapshotPayload{Snapshot: snapshot}
	if snapshot.Status == models.RoomStatusRunning && snapshot.CurrentQuestionID != uuid.Nil {
		question, err := s.questions.GetQuestion(ctx, snapshot.CurrentQuestionID)
		if err != nil {
			log.Error().Err(err).
				Str("room_code", code).
				Str("question_id", snapshot.CurrentQuestionID.String()).
				Msg("failed to load current question for snapshot sync")
		} else {
			view := question.View()
			payload.CurrentQuestion = &view
		}
	}

	ev, err := events.NewUnicast(code, events.KindRoomSnapshot, conn.PlayerID, s.clock.Now(), payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to build snapshot event")
		return
	}
	s.manager.SendToConnection(conn, ev)
}

func (s *Service) handleStartGame(ctx context.Context, conn *Connection, code string) {
	if _, err := s.sessions.StartGame(ctx, code, conn.PlayerID); err != nil {
		s.sendServiceError(conn, code, err)
	}
}

// handleSubmitAnswer records the answer and, when the outcome settles
// the question for everyone, ends it immediately instead of waiting
// for the timer.
func (s *Service) handleSubmitAnswer(ctx context.Context, conn *Connection, code string, cmd Command) {
	questionID, err := uuid.Parse(cmd.QuestionID)
	if err != nil {
		s.sendError(conn, code, "bad_request", "valid question_id required")
		return
	}
	optionID, err := uuid.Parse(cmd.OptionID)
	if err != nil {
		s.sendError(conn, code, "bad_request", "valid option_id required")
		return
	}

	outcome, err := s.sessions.SubmitAnswer(ctx, code, questionID, conn.PlayerID, optionID)
	if err != nil {
		s.sendServiceError(conn, code, err)
		return
	}

	var reason events.EndReason
	switch {
	case outcome.IsFirstCorrect:
		reason = events.EndReasonFirstCorrect
	case outcome.AllAnswered:
		reason = events.EndReasonAllWrong
	default:
		return
	}

	if err := s.sessions.EndQuestion(ctx, code, questionID, reason); err != nil && !errors.Is(err, session.ErrQuestionNotCurrent) {
		log.Error().Err(err).
			Str("room_code", code).
			Str("question_id", questionID.String()).
			Str("reason", string(reason)).
			Msg("failed to end question after settling answer")
	}
}

// handleEndQuestion lets the host cut a question short manually.
func (s *Service) handleEndQuestion(ctx context.Context, conn *Connection, code string, cmd Command) {
	questionID, err := uuid.Parse(cmd.QuestionID)
	if err != nil {
		s.sendError(conn, code, "bad_request", "valid question_id required")
		return
	}

	snapshot, err := s.rooms.GetRoomState(ctx, code)
	if err != nil {
		s.sendServiceError(conn, code, err)
		return
	}
	if snapshot == nil {
		s.sendServiceError(conn, code, room.ErrRoomNotFound)
		return
	}
	if snapshot.HostPlayerID != conn.PlayerID {
		s.sendServiceError(conn, code, session.ErrForbidden)
		return
	}

	if err := s.sessions.EndQuestion(ctx, code, questionID, events.EndReasonManual); err != nil {
		s.sendServiceError(conn, code, err)
	}
}

// sendServiceError maps a service error to its wire code and unicasts
// it to the offending socket.
func (s *Service) sendServiceError(conn *Connection, code string, err error) {
	s.sendError(conn, code, errorCode(err), err.Error())
}

func (s *Service) sendError(conn *Connection, roomCode, code, message string) {
	ev, err := events.NewUnicast(roomCode, events.KindError, conn.PlayerID, s.clock.Now(), events.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build error event")
		return
	}
	s.manager.SendToConnection(conn, ev)
}

// errorCode translates service sentinels into stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, room.ErrRoomNotJoinable):
		return "room_not_joinable"
	case errors.Is(err, room.ErrHostNotFound), errors.Is(err, identity.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, catalog.ErrQuestionNotFound):
		return "question_not_found"
	case errors.Is(err, session.ErrForbidden):
		return "forbidden"
	case errors.Is(err, session.ErrGameAlreadyStarted):
		return "game_already_started"
	case errors.Is(err, session.ErrRoomNotRunning):
		return "room_not_running"
	case errors.Is(err, session.ErrQuestionNotCurrent):
		return "question_not_current"
	case errors.Is(err, session.ErrAlreadyAnswered):
		return "already_answered"
	case errors.Is(err, session.ErrOptionNotFound):
		return "option_not_found"
	case errors.Is(err, session.ErrNoQuestionsAvailable):
		return "no_questions_available"
	default:
		return "internal_error"
	}
}
