package livestore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlin14/quizroom/internal/models"
)

func testSnapshot(code string) *models.RoomSnapshot {
	hostID := uuid.New()
	return &models.RoomSnapshot{
		RoomCode:             code,
		RoomID:               uuid.New(),
		HostPlayerID:         hostID,
		HostParticipates:     true,
		Status:               models.RoomStatusLobby,
		CurrentQuestionIndex: -1,
		Players: map[uuid.UUID]models.RoomPlayer{
			hostID: {DisplayName: "host", Score: 0},
		},
	}
}

func TestMemoryStoreGetAbsentReturnsNil(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Get(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreSaveGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	snapshot := testSnapshot("ABC234")

	require.NoError(t, s.Save(context.Background(), snapshot))

	got, err := s.Get(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
}

func TestMemoryStoreIsolatesCallersFromStoredState(t *testing.T) {
	s := NewMemoryStore()
	snapshot := testSnapshot("ABC234")
	require.NoError(t, s.Save(context.Background(), snapshot))

	// Mutating the saved-in value must not leak into the store.
	snapshot.Status = models.RoomStatusRunning

	got, err := s.Get(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusLobby, got.Status)

	// Mutating a read-out value must not leak either.
	got.Players[uuid.New()] = models.RoomPlayer{DisplayName: "intruder"}

	again, err := s.Get(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Len(t, again.Players, 1)
}

func TestMemoryStoreExistsAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	exists, err := s.Exists(ctx, "ABC234")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Save(ctx, testSnapshot("ABC234")))

	exists, err = s.Exists(ctx, "ABC234")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, "ABC234"))

	exists, err = s.Exists(ctx, "ABC234")
	require.NoError(t, err)
	assert.False(t, exists)

	got, err := s.Get(ctx, "ABC234")
	require.NoError(t, err)
	assert.Nil(t, got)
}
