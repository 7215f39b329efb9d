// Package events defines the event kinds and typed payloads pushed to
// room subscribers. It is shared by the session and gateway packages
// to avoid cyclic imports.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkarlin14/quizroom/internal/models"
)

// Kind identifies the type of a room event.
type Kind string

const (
	KindRoomSnapshot  Kind = "room_snapshot"
	KindPlayerJoined  Kind = "player_joined"
	KindGameStarted   Kind = "game_started"
	KindNewQuestion   Kind = "new_question"
	KindAnswerResult  Kind = "answer_result"
	KindScoresUpdated Kind = "scores_updated"
	KindQuestionEnded Kind = "question_ended"
	KindGameEnded     Kind = "game_ended"
	KindError         Kind = "error"
)

// Envelope is the wire shape of every room event. TargetPlayerID set
// means the event is unicast to that player's sockets only.
type Envelope struct {
	ID             string          `json:"id"`
	RoomCode       string          `json:"room_code"`
	Kind           Kind            `json:"kind"`
	TargetPlayerID string          `json:"target_player_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data"`
}

// New builds a broadcast envelope for a room topic, stamped at. The
// caller supplies the time so envelopes follow its injected clock.
func New(roomCode string, kind Kind, at time.Time, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		RoomCode:  roomCode,
		Kind:      kind,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// NewUnicast builds an envelope delivered only to the target player.
func NewUnicast(roomCode string, kind Kind, targetPlayerID uuid.UUID, at time.Time, payload any) (*Envelope, error) {
	ev, err := New(roomCode, kind, at, payload)
	if err != nil {
		return nil, err
	}
	ev.TargetPlayerID = targetPlayerID.String()
	return ev, nil
}

// EndReason says why a question ended.
type EndReason string

const (
	EndReasonFirstCorrect EndReason = "first_correct"
	EndReasonAllWrong     EndReason = "all_wrong"
	EndReasonTimeout      EndReason = "timeout"
	EndReasonManual       EndReason = "manual"
)

// RoomSnapshotPayload resynchronizes a (re)joining socket. The current
// question rides along when the room is running so late joiners need
// no special casing.
type RoomSnapshotPayload struct {
	Snapshot        *models.RoomSnapshot `json:"snapshot"`
	CurrentQuestion *models.QuestionView `json:"current_question,omitempty"`
}

type PlayerJoinedPayload struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	PlayerCount int    `json:"player_count"`
}

type GameStartedPayload struct {
	RoomCode      string    `json:"room_code"`
	QuestionCount int       `json:"question_count"`
	StartedAt     time.Time `json:"started_at"`
}

type NewQuestionPayload struct {
	Question  models.QuestionView `json:"question"`
	Index     int                 `json:"index"`
	Total     int                 `json:"total"`
	StartedAt time.Time           `json:"started_at"`
	EndsAt    time.Time           `json:"ends_at"`
}

type AnswerResultPayload struct {
	Outcome models.AnswerOutcome `json:"outcome"`
}

type ScoresUpdatedPayload struct {
	Leaderboard   []models.LeaderboardEntry `json:"leaderboard"`
	AnsweredCount int                       `json:"answered_count"`
}

type QuestionEndedPayload struct {
	QuestionID      string                    `json:"question_id"`
	CorrectOptionID string                    `json:"correct_option_id"`
	Reason          EndReason                 `json:"reason"`
	Leaderboard     []models.LeaderboardEntry `json:"leaderboard"`
}

type GameEndedPayload struct {
	RoomCode    string                    `json:"room_code"`
	Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	FinishedAt  time.Time                 `json:"finished_at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
