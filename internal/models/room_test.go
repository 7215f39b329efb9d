package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedRespondersExcludesNonParticipatingHost(t *testing.T) {
	hostID := uuid.New()
	p1 := uuid.New()
	p2 := uuid.New()

	snapshot := &RoomSnapshot{
		HostPlayerID:     hostID,
		HostParticipates: false,
		Players: map[uuid.UUID]RoomPlayer{
			hostID: {DisplayName: "host"},
			p1:     {DisplayName: "alice"},
			p2:     {DisplayName: "bob"},
		},
	}
	assert.Equal(t, 2, snapshot.ExpectedResponders())

	snapshot.HostParticipates = true
	assert.Equal(t, 3, snapshot.ExpectedResponders())
}

func TestCloneIsDeep(t *testing.T) {
	playerID := uuid.New()
	finishedAt := time.Now()
	snapshot := &RoomSnapshot{
		RoomCode:        "ABC234",
		Players:         map[uuid.UUID]RoomPlayer{playerID: {DisplayName: "alice", Score: 2}},
		QuestionOrder:   []uuid.UUID{uuid.New(), uuid.New()},
		AnsweredPlayers: map[uuid.UUID]bool{playerID: true},
		FinishedAt:      &finishedAt,
	}

	cp := snapshot.Clone()
	require.Equal(t, snapshot, cp)

	cp.Players[playerID] = RoomPlayer{DisplayName: "alice", Score: 99}
	cp.QuestionOrder[0] = uuid.New()
	delete(cp.AnsweredPlayers, playerID)
	*cp.FinishedAt = finishedAt.Add(time.Hour)

	assert.Equal(t, 2, snapshot.Players[playerID].Score)
	assert.NotEqual(t, cp.QuestionOrder[0], snapshot.QuestionOrder[0])
	assert.True(t, snapshot.AnsweredPlayers[playerID])
	assert.True(t, snapshot.FinishedAt.Equal(finishedAt))
}

func TestCloneNil(t *testing.T) {
	var snapshot *RoomSnapshot
	assert.Nil(t, snapshot.Clone())
}

func TestQuestionViewStripsCorrectness(t *testing.T) {
	correct := uuid.New()
	q := Question{
		ID:           uuid.New(),
		Text:         "Which planet is known as the red planet?",
		TimeLimitSec: 20,
		Options: []Option{
			{ID: uuid.New(), Text: "Venus", IsCorrect: false},
			{ID: correct, Text: "Mars", IsCorrect: true},
		},
	}

	view := q.View()
	require.Len(t, view.Options, 2)
	assert.Equal(t, q.ID, view.ID)
	for _, o := range view.Options {
		assert.NotEmpty(t, o.Text)
	}

	assert.Equal(t, correct, q.CorrectOptionID())
}
