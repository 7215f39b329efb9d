package models

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is the append-only durable row written for every
// admitted answer. It is best-effort relative to the live snapshot.
type AnswerRecord struct {
	ID             uuid.UUID `json:"id"`
	RoomID         uuid.UUID `json:"room_id"`
	PlayerID       uuid.UUID `json:"player_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	OptionID       uuid.UUID `json:"option_id"`
	IsCorrect      bool      `json:"is_correct"`
	IsFirstCorrect bool      `json:"is_first_correct"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// AnswerOutcome is what SubmitAnswer reports back to the answering
// player. AllAnswered signals "everyone answered and nobody was
// correct", which ends the question early.
type AnswerOutcome struct {
	QuestionID     uuid.UUID `json:"question_id"`
	OptionID       uuid.UUID `json:"option_id"`
	IsCorrect      bool      `json:"is_correct"`
	DeltaScore     int       `json:"delta_score"`
	UpdatedScore   int       `json:"updated_score"`
	IsFirstCorrect bool      `json:"is_first_correct"`
	AllAnswered    bool      `json:"all_answered"`
}
