package models

import "github.com/google/uuid"

// Option is one answer choice of a question. IsCorrect never leaves
// the server; clients only ever see OptionView.
type Option struct {
	ID        uuid.UUID `json:"id"`
	Text      string    `json:"text"`
	IsCorrect bool      `json:"is_correct"`
}

// Question is a catalog question with its answer-bearing options.
type Question struct {
	ID           uuid.UUID `json:"id"`
	CategoryID   uuid.UUID `json:"category_id"`
	Difficulty   string    `json:"difficulty"`
	Text         string    `json:"text"`
	TimeLimitSec int       `json:"time_limit_sec"`
	Options      []Option  `json:"options"`
}

// CorrectOptionID returns the id of the correct option, or uuid.Nil if
// the question has none.
func (q *Question) CorrectOptionID() uuid.UUID {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.ID
		}
	}
	return uuid.Nil
}

// OptionByID looks up an option by id.
func (q *Question) OptionByID(id uuid.UUID) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionView is an Option with the correctness flag stripped.
type OptionView struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// QuestionView is the client-facing shape of a question.
type QuestionView struct {
	ID           uuid.UUID    `json:"id"`
	Text         string       `json:"text"`
	TimeLimitSec int          `json:"time_limit_sec"`
	Options      []OptionView `json:"options"`
}

// View strips answer-bearing fields for broadcast to clients.
func (q *Question) View() QuestionView {
	opts := make([]OptionView, len(q.Options))
	for i, o := range q.Options {
		opts[i] = OptionView{ID: o.ID, Text: o.Text}
	}
	return QuestionView{
		ID:           q.ID,
		Text:         q.Text,
		TimeLimitSec: q.TimeLimitSec,
		Options:      opts,
	}
}
