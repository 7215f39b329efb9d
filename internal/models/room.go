package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus defines the lifecycle state of a room.
type RoomStatus string

const (
	RoomStatusLobby    RoomStatus = "LOBBY"
	RoomStatusRunning  RoomStatus = "RUNNING"
	RoomStatusFinished RoomStatus = "FINISHED"
)

// RoomSettings holds the configuration fixed at room creation.
type RoomSettings struct {
	QuestionCount int         `json:"question_count"`
	CategoryIDs   []uuid.UUID `json:"category_ids,omitempty"`
	Difficulties  []string    `json:"difficulties,omitempty"`
}

// RoomPlayer is one member of a room with their live score.
type RoomPlayer struct {
	DisplayName string `json:"display_name"`
	Score       int    `json:"score"`
}

// RoomSnapshot is the complete live state of a room at an instant.
// It is owned exclusively by the live store and replaced in full on
// every mutation; callers must never hold one across a blocking call.
type RoomSnapshot struct {
	RoomCode             string                    `json:"room_code"`
	RoomID               uuid.UUID                 `json:"room_id"`
	HostPlayerID         uuid.UUID                 `json:"host_player_id"`
	HostParticipates     bool                      `json:"host_participates"`
	Status               RoomStatus                `json:"status"`
	Settings             RoomSettings              `json:"settings"`
	Players              map[uuid.UUID]RoomPlayer  `json:"players"`
	QuestionOrder        []uuid.UUID               `json:"question_order,omitempty"`
	CurrentQuestionIndex int                       `json:"current_question_index"`
	CurrentQuestionID    uuid.UUID                 `json:"current_question_id,omitempty"`
	AnsweredPlayers      map[uuid.UUID]bool        `json:"answered_players,omitempty"`
	FirstCorrectPlayerID uuid.UUID                 `json:"first_correct_player_id,omitempty"`
	QuestionStartedAt    time.Time                 `json:"question_started_at,omitempty"`
	CreatedAt            time.Time                 `json:"created_at"`
	FinishedAt           *time.Time                `json:"finished_at,omitempty"`
}

// Clone returns a deep copy of the snapshot so store implementations
// can hand out copies without aliasing the stored maps and slices.
func (s *RoomSnapshot) Clone() *RoomSnapshot {
	if s == nil {
		return nil
	}

	cp := *s

	cp.Players = make(map[uuid.UUID]RoomPlayer, len(s.Players))
	for id, p := range s.Players {
		cp.Players[id] = p
	}

	if s.QuestionOrder != nil {
		cp.QuestionOrder = make([]uuid.UUID, len(s.QuestionOrder))
		copy(cp.QuestionOrder, s.QuestionOrder)
	}

	if s.AnsweredPlayers != nil {
		cp.AnsweredPlayers = make(map[uuid.UUID]bool, len(s.AnsweredPlayers))
		for id := range s.AnsweredPlayers {
			cp.AnsweredPlayers[id] = true
		}
	}

	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}

	return &cp
}

// HasAnswered reports whether the player already answered the current question.
func (s *RoomSnapshot) HasAnswered(playerID uuid.UUID) bool {
	return s.AnsweredPlayers[playerID]
}

// IsMember reports whether the player belongs to the room.
func (s *RoomSnapshot) IsMember(playerID uuid.UUID) bool {
	_, ok := s.Players[playerID]
	return ok
}

// ExpectedResponders counts the players a question waits on. A host
// that does not participate is a member but is never expected to answer.
func (s *RoomSnapshot) ExpectedResponders() int {
	n := len(s.Players)
	if !s.HostParticipates && s.IsMember(s.HostPlayerID) {
		n--
	}
	return n
}

// LeaderboardEntry is one row of the ordered leaderboard.
type LeaderboardEntry struct {
	PlayerID    uuid.UUID `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Score       int       `json:"score"`
	Rank        int       `json:"rank"`
}

// PlayerProfile is the projection of a player the engine consumes from
// the identity collaborator.
type PlayerProfile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
}
