package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlin14/quizroom/internal/bus"
	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
	"github.com/mkarlin14/quizroom/internal/session"
)

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[string]*models.RoomSnapshot
}

func (f *fakeRooms) CreateRoom(_ context.Context, req room.CreateRoomRequest) (*models.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := &models.RoomSnapshot{
		RoomCode:             "ABC234",
		RoomID:               uuid.New(),
		HostPlayerID:         req.HostPlayerID,
		HostParticipates:     req.HostParticipates,
		Status:               models.RoomStatusLobby,
		Settings:             req.Settings,
		Players:              map[uuid.UUID]models.RoomPlayer{req.HostPlayerID: {DisplayName: "host"}},
		CurrentQuestionIndex: -1,
	}
	f.rooms[snapshot.RoomCode] = snapshot
	return snapshot, nil
}

func (f *fakeRooms) JoinRoom(_ context.Context, code string, playerID uuid.UUID) (*models.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.rooms[code]
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	if snapshot.Status != models.RoomStatusLobby {
		return nil, room.ErrRoomNotJoinable
	}
	snapshot.Players[playerID] = models.RoomPlayer{DisplayName: "player"}
	return snapshot, nil
}

func (f *fakeRooms) GetRoomState(_ context.Context, code string) (*models.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[code], nil
}

type endCall struct {
	questionID uuid.UUID
	reason     events.EndReason
}

type fakeSessions struct {
	mu            sync.Mutex
	submitOutcome *models.AnswerOutcome
	submitErr     error
	endCalls      []endCall
}

func (f *fakeSessions) StartGame(_ context.Context, _ string, _ uuid.UUID) ([]models.QuestionView, error) {
	return nil, nil
}

func (f *fakeSessions) SubmitAnswer(_ context.Context, _ string, _, _, _ uuid.UUID) (*models.AnswerOutcome, error) {
	return f.submitOutcome, f.submitErr
}

func (f *fakeSessions) EndQuestion(_ context.Context, _ string, questionID uuid.UUID, reason events.EndReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls = append(f.endCalls, endCall{questionID: questionID, reason: reason})
	return nil
}

func (f *fakeSessions) GetLeaderboard(_ context.Context, _ string) ([]models.LeaderboardEntry, error) {
	return nil, nil
}

func (f *fakeSessions) ends() []endCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]endCall(nil), f.endCalls...)
}

type fakeQuestions struct {
	questions map[uuid.UUID]*models.Question
}

func (f *fakeQuestions) GetQuestion(_ context.Context, id uuid.UUID) (*models.Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return nil, session.ErrQuestionNotCurrent
	}
	return q, nil
}

type gatewayFixture struct {
	service  *Service
	rooms    *fakeRooms
	sessions *fakeSessions
	clock    *clockwork.FakeClock
	hostID   uuid.UUID
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	f := &gatewayFixture{
		rooms:    &fakeRooms{rooms: make(map[string]*models.RoomSnapshot)},
		sessions: &fakeSessions{},
		clock:    clockwork.NewFakeClock(),
		hostID:   uuid.New(),
	}

	manager := NewConnectionManager(DefaultConnectionConfig())
	f.service = NewService(
		manager,
		f.rooms,
		f.sessions,
		&fakeQuestions{questions: make(map[uuid.UUID]*models.Question)},
		bus.NewInProcBus(),
		f.clock,
		Config{JoinBaseURL: "http://localhost:8080/join"},
	)
	return f
}

func (f *gatewayFixture) seedRoom(status models.RoomStatus) *models.RoomSnapshot {
	snapshot := &models.RoomSnapshot{
		RoomCode:         "ABC234",
		RoomID:           uuid.New(),
		HostPlayerID:     f.hostID,
		HostParticipates: true,
		Status:           status,
		Players:          map[uuid.UUID]models.RoomPlayer{f.hostID: {DisplayName: "host"}},
	}
	f.rooms.rooms[snapshot.RoomCode] = snapshot
	return snapshot
}

func newTestConnection(manager *ConnectionManager, playerID uuid.UUID) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		send:     make(chan []byte, 16),
		Manager:  manager,
	}
}

func send(t *testing.T, f *gatewayFixture, conn *Connection, cmd Command) {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	f.service.handleClientMessage(conn, raw)
}

func readEvent(t *testing.T, conn *Connection) *events.Envelope {
	t.Helper()
	select {
	case raw := <-conn.send:
		var ev events.Envelope
		require.NoError(t, json.Unmarshal(raw, &ev))
		return &ev
	case <-time.After(time.Second):
		t.Fatal("expected an event on the connection")
		return nil
	}
}

func TestJoinRoomChannelSendsSnapshotSync(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusLobby)
	conn := newTestConnection(f.service.manager, f.hostID)

	send(t, f, conn, Command{Action: ActionJoinRoomChannel, RoomCode: "abc234"})

	ev := readEvent(t, conn)
	assert.Equal(t, events.KindRoomSnapshot, ev.Kind)
	assert.Equal(t, "ABC234", ev.RoomCode)
	assert.Equal(t, f.hostID.String(), ev.TargetPlayerID)
	assert.True(t, ev.Timestamp.Equal(f.clock.Now().UTC()), "envelope stamped by the service clock")

	var payload events.RoomSnapshotPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	require.NotNil(t, payload.Snapshot)
	assert.Equal(t, models.RoomStatusLobby, payload.Snapshot.Status)
	assert.Nil(t, payload.CurrentQuestion)
}

func TestJoinRoomChannelIncludesCurrentQuestion(t *testing.T) {
	f := newGatewayFixture(t)
	snapshot := f.seedRoom(models.RoomStatusRunning)

	question := &models.Question{
		ID:           uuid.New(),
		Text:         "What is the capital of France?",
		TimeLimitSec: 20,
		Options:      []models.Option{{ID: uuid.New(), Text: "Paris", IsCorrect: true}},
	}
	snapshot.CurrentQuestionID = question.ID
	f.service.questions.(*fakeQuestions).questions[question.ID] = question

	conn := newTestConnection(f.service.manager, f.hostID)
	send(t, f, conn, Command{Action: ActionJoinRoomChannel, RoomCode: "ABC234"})

	ev := readEvent(t, conn)
	var payload events.RoomSnapshotPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	require.NotNil(t, payload.CurrentQuestion)
	assert.Equal(t, question.ID, payload.CurrentQuestion.ID)
}

func TestJoinRoomChannelUnknownRoom(t *testing.T) {
	f := newGatewayFixture(t)
	conn := newTestConnection(f.service.manager, f.hostID)

	send(t, f, conn, Command{Action: ActionJoinRoomChannel, RoomCode: "ZZZZZZ"})

	ev := readEvent(t, conn)
	assert.Equal(t, events.KindError, ev.Kind)

	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "room_not_found", payload.Code)
}

func TestSubmitAnswerEndsQuestionOnFirstCorrect(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusRunning)
	questionID := uuid.New()
	f.sessions.submitOutcome = &models.AnswerOutcome{QuestionID: questionID, IsCorrect: true, IsFirstCorrect: true}

	conn := newTestConnection(f.service.manager, f.hostID)
	send(t, f, conn, Command{
		Action:     ActionSubmitAnswer,
		RoomCode:   "ABC234",
		QuestionID: questionID.String(),
		OptionID:   uuid.New().String(),
	})

	calls := f.sessions.ends()
	require.Len(t, calls, 1)
	assert.Equal(t, questionID, calls[0].questionID)
	assert.Equal(t, events.EndReasonFirstCorrect, calls[0].reason)
}

func TestSubmitAnswerEndsQuestionWhenAllWrong(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusRunning)
	questionID := uuid.New()
	f.sessions.submitOutcome = &models.AnswerOutcome{QuestionID: questionID, AllAnswered: true}

	conn := newTestConnection(f.service.manager, f.hostID)
	send(t, f, conn, Command{
		Action:     ActionSubmitAnswer,
		RoomCode:   "ABC234",
		QuestionID: questionID.String(),
		OptionID:   uuid.New().String(),
	})

	calls := f.sessions.ends()
	require.Len(t, calls, 1)
	assert.Equal(t, events.EndReasonAllWrong, calls[0].reason)
}

func TestSubmitAnswerLeavesOpenQuestionRunning(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusRunning)
	f.sessions.submitOutcome = &models.AnswerOutcome{DeltaScore: -1}

	conn := newTestConnection(f.service.manager, f.hostID)
	send(t, f, conn, Command{
		Action:     ActionSubmitAnswer,
		RoomCode:   "ABC234",
		QuestionID: uuid.New().String(),
		OptionID:   uuid.New().String(),
	})

	assert.Empty(t, f.sessions.ends())
}

func TestSubmitAnswerForwardsServiceError(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusRunning)
	f.sessions.submitErr = session.ErrAlreadyAnswered

	conn := newTestConnection(f.service.manager, f.hostID)
	send(t, f, conn, Command{
		Action:     ActionSubmitAnswer,
		RoomCode:   "ABC234",
		QuestionID: uuid.New().String(),
		OptionID:   uuid.New().String(),
	})

	ev := readEvent(t, conn)
	assert.Equal(t, events.KindError, ev.Kind)

	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "already_answered", payload.Code)
	assert.Empty(t, f.sessions.ends())
}

func TestEndQuestionRequiresHost(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusRunning)

	conn := newTestConnection(f.service.manager, uuid.New())
	send(t, f, conn, Command{
		Action:     ActionEndQuestion,
		RoomCode:   "ABC234",
		QuestionID: uuid.New().String(),
	})

	ev := readEvent(t, conn)
	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "forbidden", payload.Code)
	assert.Empty(t, f.sessions.ends())
}

func TestEndQuestionByHost(t *testing.T) {
	f := newGatewayFixture(t)
	f.seedRoom(models.RoomStatusRunning)
	questionID := uuid.New()

	conn := newTestConnection(f.service.manager, f.hostID)
	send(t, f, conn, Command{
		Action:     ActionEndQuestion,
		RoomCode:   "ABC234",
		QuestionID: questionID.String(),
	})

	calls := f.sessions.ends()
	require.Len(t, calls, 1)
	assert.Equal(t, questionID, calls[0].questionID)
	assert.Equal(t, events.EndReasonManual, calls[0].reason)
}

func TestUnknownActionRejected(t *testing.T) {
	f := newGatewayFixture(t)
	conn := newTestConnection(f.service.manager, uuid.New())

	send(t, f, conn, Command{Action: "dance"})

	ev := readEvent(t, conn)
	var payload events.ErrorPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "bad_request", payload.Code)
}

func TestBroadcastReachesOnlySubscribedRoom(t *testing.T) {
	f := newGatewayFixture(t)
	manager := f.service.manager

	subscribed := newTestConnection(manager, uuid.New())
	other := newTestConnection(manager, uuid.New())
	manager.Subscribe(subscribed, "ABC234")
	manager.Subscribe(other, "XYZ789")

	ev, err := events.New("ABC234", events.KindScoresUpdated, f.clock.Now(), struct{}{})
	require.NoError(t, err)
	manager.handleBroadcast(ev)

	got := readEvent(t, subscribed)
	assert.Equal(t, events.KindScoresUpdated, got.Kind)

	select {
	case <-other.send:
		t.Fatal("event leaked to a connection in another room")
	default:
	}
}

func TestUnicastTargetsSinglePlayer(t *testing.T) {
	f := newGatewayFixture(t)
	manager := f.service.manager

	target := newTestConnection(manager, uuid.New())
	bystander := newTestConnection(manager, uuid.New())
	manager.Subscribe(target, "ABC234")
	manager.Subscribe(bystander, "ABC234")

	ev, err := events.NewUnicast("ABC234", events.KindAnswerResult, target.PlayerID, f.clock.Now(), struct{}{})
	require.NoError(t, err)
	manager.handleBroadcast(ev)

	got := readEvent(t, target)
	assert.Equal(t, events.KindAnswerResult, got.Kind)

	select {
	case <-bystander.send:
		t.Fatal("unicast event leaked to another player")
	default:
	}
}
