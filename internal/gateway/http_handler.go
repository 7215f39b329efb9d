package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mkarlin14/quizroom/internal/catalog"
	"github.com/mkarlin14/quizroom/internal/identity"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
	"github.com/mkarlin14/quizroom/internal/roomcode"
	"github.com/mkarlin14/quizroom/internal/session"
)

const qrImageSize = 256

// RegisterRoutes mounts the gateway's HTTP surface on the mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("POST /rooms/{code}/join", s.handleJoinRoom)
	mux.HandleFunc("GET /rooms/{code}", s.handleGetRoom)
	mux.HandleFunc("GET /rooms/{code}/leaderboard", s.handleGetLeaderboard)
	mux.HandleFunc("GET /rooms/{code}/qr", s.handleGetJoinQR)
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	mux.HandleFunc("GET /ws/stats", s.handleStats)
}

type createRoomRequest struct {
	HostPlayerID     string      `json:"host_player_id"`
	HostParticipates bool        `json:"host_participates"`
	QuestionCount    int         `json:"question_count"`
	CategoryIDs      []uuid.UUID `json:"category_ids,omitempty"`
	Difficulties     []string    `json:"difficulties,omitempty"`
}

func (s *Service) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	hostID, err := uuid.Parse(req.HostPlayerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "valid host_player_id required")
		return
	}
	if req.QuestionCount <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "question_count must be positive")
		return
	}

	snapshot, err := s.rooms.CreateRoom(r.Context(), room.CreateRoomRequest{
		HostPlayerID:     hostID,
		HostParticipates: req.HostParticipates,
		Settings: models.RoomSettings{
			QuestionCount: req.QuestionCount,
			CategoryIDs:   req.CategoryIDs,
			Difficulties:  req.Difficulties,
		},
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, snapshot)
}

type joinRoomRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Service) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	playerID, err := uuid.Parse(req.PlayerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "valid player_id required")
		return
	}

	snapshot, err := s.rooms.JoinRoom(r.Context(), r.PathValue("code"), playerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Service) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.rooms.GetRoomState(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if snapshot == nil {
		writeServiceError(w, room.ErrRoomNotFound)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Service) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	leaderboard, err := s.sessions.GetLeaderboard(r.Context(), r.PathValue("code"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": leaderboard})
}

// handleGetJoinQR renders a QR code pointing at the public join URL
// for the room, for showing on a shared screen.
func (s *Service) handleGetJoinQR(w http.ResponseWriter, r *http.Request) {
	code := roomcode.Normalize(r.PathValue("code"))

	snapshot, err := s.rooms.GetRoomState(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if snapshot == nil {
		writeServiceError(w, room.ErrRoomNotFound)
		return
	}

	png, err := qrcode.Encode(s.config.JoinBaseURL+"/"+code, qrcode.Medium, qrImageSize)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to encode join QR")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Stats())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

// writeServiceError maps service sentinels to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, room.ErrRoomNotFound),
		errors.Is(err, room.ErrHostNotFound),
		errors.Is(err, identity.ErrPlayerNotFound),
		errors.Is(err, catalog.ErrQuestionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrRoomNotJoinable),
		errors.Is(err, session.ErrGameAlreadyStarted),
		errors.Is(err, session.ErrRoomNotRunning),
		errors.Is(err, session.ErrQuestionNotCurrent),
		errors.Is(err, session.ErrAlreadyAnswered):
		status = http.StatusConflict
	case errors.Is(err, session.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, session.ErrOptionNotFound),
		errors.Is(err, session.ErrNoQuestionsAvailable):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
		writeError(w, status, "internal_error", "internal error")
		return
	}
	writeError(w, status, errorCode(err), err.Error())
}
