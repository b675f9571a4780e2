// internal/handlers/recordings.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/lobby"
)

// UploadRecordingHandler registers a player's clip for the current round.
// The body carries the URL of the already-uploaded audio; the lobby state
// machine decides whether the round is complete. When AI rating is enabled
// the clip is scored asynchronously so the upload response never waits on
// the external scorer.
func (s *Server) UploadRecordingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, err := authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		lobbyID, err := uuid.Parse(chi.URLParam(r, "lobbyID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lobby id")
			return
		}
		round, err := strconv.Atoi(chi.URLParam(r, "round"))
		if err != nil || round < 0 {
			writeError(w, http.StatusBadRequest, "invalid round")
			return
		}

		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "recording url is required")
			return
		}

		lb, err := s.Registry.GetByID(lobbyID)
		if err != nil {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}

		rec, err := lb.SubmitRecording(player.ID, round, req.URL)
		switch {
		case errors.Is(err, lobby.ErrPlayerNotFound):
			writeError(w, http.StatusForbidden, "not a member of this lobby")
			return
		case errors.Is(err, lobby.ErrInvalidPhase):
			writeError(w, http.StatusConflict, "lobby is not recording this round")
			return
		case err != nil:
			s.Logger.Errorf("failed to submit recording for %s in lobby %s: %v", player.ID, lobbyID, err)
			writeError(w, http.StatusInternalServerError, "failed to submit recording")
			return
		}

		lb.Mu.Lock()
		aiRate := lb.AIRate
		lb.Mu.Unlock()
		if aiRate && s.Scorer != nil {
			go s.scoreRecording(lb, player.ID, round, req.URL)
		}

		writeJSON(w, http.StatusOK, rec)
	}
}

// scoreRecording asks the external scorer for a rating and feeds the result
// back into the lobby. Scorer failures are logged and the recording simply
// keeps a nil score.
func (s *Server) scoreRecording(lb *lobby.Lobby, userID uuid.UUID, round int, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	score, err := s.Scorer.ScoreRecording(ctx, url)
	if err != nil {
		s.Logger.Warnf("scorer failed for player %s round %d: %v", userID, round, err)
		return
	}
	if err := lb.SetAIScore(userID, round, score); err != nil {
		s.Logger.Warnf("could not attach AI score for player %s round %d: %v", userID, round, err)
	}
}

// ListRecordingsHandler returns every recording submitted in a lobby,
// looked up by join code.
func (s *Server) ListRecordingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticate(r); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		lb, err := s.Registry.GetByCode(chi.URLParam(r, "code"))
		if err != nil {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}
		writeJSON(w, http.StatusOK, lb.Recordings())
	}
}
