package session

import "errors"

var (
	// ErrForbidden is returned when a non-host attempts a host-only
	// action, or a non-participant submits an answer.
	ErrForbidden = errors.New("requester is not allowed to perform this action")

	// ErrGameAlreadyStarted is returned when starting a room that left
	// the lobby.
	ErrGameAlreadyStarted = errors.New("game already started")

	// ErrRoomNotRunning is returned for in-game actions outside RUNNING.
	ErrRoomNotRunning = errors.New("room is not running")

	// ErrQuestionNotCurrent guards against late or stale submissions
	// and stale timers: the named question is no longer the current one.
	ErrQuestionNotCurrent = errors.New("question is not current")

	// ErrAlreadyAnswered is returned when a player double-answers.
	ErrAlreadyAnswered = errors.New("player already answered this question")

	// ErrOptionNotFound is returned when the option does not belong to
	// the submitted question.
	ErrOptionNotFound = errors.New("option not found")

	// ErrNoQuestionsAvailable is returned when the category/difficulty
	// filter matches no active questions.
	ErrNoQuestionsAvailable = errors.New("no questions available for the configured filter")
)
