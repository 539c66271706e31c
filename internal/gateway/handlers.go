package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lockin-app/lockin/internal/ledger"
	"github.com/lockin-app/lockin/internal/models"
	"github.com/lockin-app/lockin/internal/pod"
)

// LedgerOps is what the gateway needs from the session ledger.
type LedgerOps interface {
	RecordFocusSession(ctx context.Context, userID string, s models.FocusSession) (*models.SessionReward, error)
	ApplyQuitPenalty(ctx context.Context, userID string, loss int) (int, error)
	RecordLogin(ctx context.Context, userID string, now time.Time) (int, error)
	Progress(ctx context.Context, userID string) (*models.UserProgress, error)
}

type podResponse struct {
	Code    string   `json:"code"`
	Members []string `json:"members"`
}

type recordSessionRequest struct {
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Type            string    `json:"type"`
}

type quitPenaltyRequest struct {
	Loss int `json:"loss"`
}

func (s *Service) handleCreatePod(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	p, err := s.registry.CreatePod(userID)
	if err != nil {
		log.Error().Err(err).Msg("pod creation failed")
		writeError(w, http.StatusInternalServerError, "could not allocate pod code")
		return
	}
	writeJSON(w, http.StatusCreated, podResponse{Code: p.Code, Members: p.Members})
}

func (s *Service) handleJoinPod(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	p, err := s.registry.JoinPod(r.PathValue("code"), userID)
	if errors.Is(err, pod.ErrNotFound) {
		writeError(w, http.StatusNotFound, "pod not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "join failed")
		return
	}
	writeJSON(w, http.StatusOK, podResponse{Code: p.Code, Members: p.Members})
}

func (s *Service) handleGetPod(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.GetPod(r.PathValue("code"))
	if errors.Is(err, pod.ErrNotFound) {
		writeError(w, http.StatusNotFound, "pod not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleRecordSession(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req recordSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	reward, err := s.ledger.RecordFocusSession(r.Context(), userID, models.FocusSession{
		UserID:          userID,
		StartedAt:       req.StartedAt,
		EndedAt:         req.EndedAt,
		DurationSeconds: req.DurationSeconds,
		Type:            models.SessionType(req.Type),
	})
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		log.Error().Err(err).Str("user_id", userID).Msg("session record failed")
		writeError(w, http.StatusInternalServerError, "session record failed")
	default:
		writeJSON(w, http.StatusOK, reward)
	}
}

func (s *Service) handleQuitPenalty(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req quitPenaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	hp, err := s.ledger.ApplyQuitPenalty(r.Context(), userID, req.Loss)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("quit penalty failed")
		writeError(w, http.StatusInternalServerError, "quit penalty failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"hp": hp})
}

// handleLogin credits today as an activity day for the login streak. Shares
// the session streak's history, so a day is never double-counted.
func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.UserID(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	streak, err := s.ledger.RecordLogin(r.Context(), userID, time.Now())
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("login streak failed")
		writeError(w, http.StatusInternalServerError, "login streak failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"streak": streak})
}

func (s *Service) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "progress lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
