package room_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlin14/quizroom/internal/bus"
	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/identity"
	"github.com/mkarlin14/quizroom/internal/livestore"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
	"github.com/mkarlin14/quizroom/internal/roomcode"
	"github.com/mkarlin14/quizroom/internal/roomlock"
)

type fakeResolver struct {
	players map[uuid.UUID]*models.PlayerProfile
}

func (f *fakeResolver) ResolvePlayer(_ context.Context, id uuid.UUID) (*models.PlayerProfile, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, identity.ErrPlayerNotFound
	}
	return p, nil
}

type fakeRoomRepo struct {
	mu           sync.Mutex
	roomsCreated []room.CreateRoomParams
	playersAdded []uuid.UUID
}

func (f *fakeRoomRepo) CreateRoom(_ context.Context, params room.CreateRoomParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomsCreated = append(f.roomsCreated, params)
	return nil
}

func (f *fakeRoomRepo) AddRoomPlayer(_ context.Context, _ uuid.UUID, playerID uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playersAdded = append(f.playersAdded, playerID)
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Envelope
}

func (r *eventRecorder) record(_ context.Context, ev *events.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

type fixture struct {
	app      *room.App
	store    livestore.Store
	repo     *fakeRoomRepo
	recorder *eventRecorder
	clock    *clockwork.FakeClock
	hostID   uuid.UUID
	playerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	hostID := uuid.New()
	playerID := uuid.New()

	resolver := &fakeResolver{players: map[uuid.UUID]*models.PlayerProfile{
		hostID:   {ID: hostID, DisplayName: "host"},
		playerID: {ID: playerID, DisplayName: "alice"},
	}}

	store := livestore.NewMemoryStore()
	repo := &fakeRoomRepo{}
	recorder := &eventRecorder{}
	eventBus := bus.NewInProcBus()
	_, err := eventBus.Subscribe(recorder.record)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()

	app := room.NewApp(
		store,
		repo,
		resolver,
		roomcode.NewGenerator(rand.New(rand.NewSource(1))),
		roomlock.NewRegistry(),
		eventBus,
		clock,
	)

	return &fixture{
		app:      app,
		store:    store,
		repo:     repo,
		recorder: recorder,
		clock:    clock,
		hostID:   hostID,
		playerID: playerID,
	}
}

func (f *fixture) createRoom(t *testing.T) *models.RoomSnapshot {
	t.Helper()
	snapshot, err := f.app.CreateRoom(context.Background(), room.CreateRoomRequest{
		HostPlayerID:     f.hostID,
		HostParticipates: true,
		Settings:         models.RoomSettings{QuestionCount: 5},
	})
	require.NoError(t, err)
	return snapshot
}

func TestCreateRoomSeedsLobbySnapshot(t *testing.T) {
	f := newFixture(t)

	snapshot := f.createRoom(t)

	assert.Len(t, snapshot.RoomCode, roomcode.DefaultLength)
	assert.Equal(t, models.RoomStatusLobby, snapshot.Status)
	assert.Equal(t, -1, snapshot.CurrentQuestionIndex)
	assert.Equal(t, f.hostID, snapshot.HostPlayerID)
	require.Contains(t, snapshot.Players, f.hostID)
	assert.Equal(t, "host", snapshot.Players[f.hostID].DisplayName)
	assert.True(t, snapshot.CreatedAt.Equal(f.clock.Now().UTC()))

	stored, err := f.store.Get(context.Background(), snapshot.RoomCode)
	require.NoError(t, err)
	require.NotNil(t, stored)

	require.Len(t, f.repo.roomsCreated, 1)
	assert.Equal(t, snapshot.RoomCode, f.repo.roomsCreated[0].Code)
	assert.Equal(t, []uuid.UUID{f.hostID}, f.repo.playersAdded)
}

func TestCreateRoomUnknownHost(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.CreateRoom(context.Background(), room.CreateRoomRequest{
		HostPlayerID: uuid.New(),
		Settings:     models.RoomSettings{QuestionCount: 5},
	})
	assert.ErrorIs(t, err, room.ErrHostNotFound)
}

func TestCreateRoomRetriesOnCodeCollision(t *testing.T) {
	f := newFixture(t)

	// Same seed yields the same first code; occupy it so CreateRoom
	// has to retry.
	taken := roomcode.NewGenerator(rand.New(rand.NewSource(1))).Next()
	require.NoError(t, f.store.Save(context.Background(), &models.RoomSnapshot{
		RoomCode: taken,
		Players:  map[uuid.UUID]models.RoomPlayer{},
	}))

	snapshot := f.createRoom(t)
	assert.NotEqual(t, taken, snapshot.RoomCode)
}

func TestJoinRoomAdmitsPlayer(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	snapshot, err := f.app.JoinRoom(context.Background(), created.RoomCode, f.playerID)
	require.NoError(t, err)

	require.Contains(t, snapshot.Players, f.playerID)
	assert.Equal(t, "alice", snapshot.Players[f.playerID].DisplayName)
	assert.Len(t, snapshot.Players, 2)
	assert.Equal(t, []uuid.UUID{f.hostID, f.playerID}, f.repo.playersAdded)
	assert.Equal(t, []events.Kind{events.KindPlayerJoined}, f.recorder.kinds())
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	snapshot, err := f.app.JoinRoom(context.Background(), "  "+created.RoomCode+" ", f.playerID)
	require.NoError(t, err)
	assert.Equal(t, created.RoomCode, snapshot.RoomCode)
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	_, err := f.app.JoinRoom(context.Background(), created.RoomCode, f.playerID)
	require.NoError(t, err)

	again, err := f.app.JoinRoom(context.Background(), created.RoomCode, f.playerID)
	require.NoError(t, err)

	assert.Len(t, again.Players, 2)
	// No second player_joined broadcast for a re-join.
	assert.Equal(t, []events.Kind{events.KindPlayerJoined}, f.recorder.kinds())
}

func TestJoinRoomRejectsStartedRoom(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	created.Status = models.RoomStatusRunning
	require.NoError(t, f.store.Save(context.Background(), created))

	_, err := f.app.JoinRoom(context.Background(), created.RoomCode, f.playerID)
	assert.ErrorIs(t, err, room.ErrRoomNotJoinable)
}

func TestJoinRoomMemberRejoinsAfterStart(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	_, err := f.app.JoinRoom(context.Background(), created.RoomCode, f.playerID)
	require.NoError(t, err)

	running, err := f.store.Get(context.Background(), created.RoomCode)
	require.NoError(t, err)
	running.Status = models.RoomStatusRunning
	require.NoError(t, f.store.Save(context.Background(), running))

	// Existing members may re-join a running room to reconnect.
	snapshot, err := f.app.JoinRoom(context.Background(), created.RoomCode, f.playerID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusRunning, snapshot.Status)
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	f := newFixture(t)

	_, err := f.app.JoinRoom(context.Background(), "ZZZZZZ", f.playerID)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestJoinRoomUnknownPlayer(t *testing.T) {
	f := newFixture(t)
	created := f.createRoom(t)

	_, err := f.app.JoinRoom(context.Background(), created.RoomCode, uuid.New())
	assert.ErrorIs(t, err, identity.ErrPlayerNotFound)
}

func TestGetRoomStateAbsentReturnsNil(t *testing.T) {
	f := newFixture(t)

	snapshot, err := f.app.GetRoomState(context.Background(), "ZZZZZZ")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}
