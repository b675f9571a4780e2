// internal/handlers/game.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/lobby"
)

// SubmitVotesHandler accepts a batch of votes from one player, typically the
// whole ballot for a round at once. Each vote is applied independently; the
// response reports per-vote rejections so a retried batch with some already
// accepted votes still succeeds.
func (s *Server) SubmitVotesHandler() http.HandlerFunc {
	type voteReq struct {
		TargetUserID string `json:"targetUserId"`
		Round        int    `json:"round"`
		Score        int    `json:"score"`
	}
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

		var req struct {
			Votes []voteReq `json:"votes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Votes) == 0 {
			writeError(w, http.StatusBadRequest, "votes are required")
			return
		}

		lb, err := s.Registry.GetByID(lobbyID)
		if err != nil {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}

		rejected := []map[string]interface{}{}
		for _, v := range req.Votes {
			targetID, err := uuid.Parse(v.TargetUserID)
			if err == nil {
				err = lb.SubmitVote(player.ID, targetID, v.Round, v.Score)
			}
			if err != nil {
				rejected = append(rejected, map[string]interface{}{
					"targetUserId": v.TargetUserID,
					"round":        v.Round,
					"reason":       voteRejectionReason(err),
				})
			}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"accepted": len(req.Votes) - len(rejected),
			"rejected": rejected,
		})
	}
}

func voteRejectionReason(err error) string {
	switch {
	case errors.Is(err, lobby.ErrInvalidVote):
		return "invalid vote"
	case errors.Is(err, lobby.ErrInvalidPhase):
		return "wrong phase or round"
	case errors.Is(err, lobby.ErrPlayerNotFound):
		return "not a member of this lobby"
	default:
		return "invalid target"
	}
}

// CalculateFinalScoresHandler finalizes the game on the owner's request and
// returns the ranking. Subscribers also receive it as finalScoresReady over
// the websocket.
func (s *Server) CalculateFinalScoresHandler() http.HandlerFunc {
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
		lb, err := s.Registry.GetByID(lobbyID)
		if err != nil {
			writeError(w, http.StatusNotFound, "lobby not found")
			return
		}

		switch err := lb.CalculateFinalScores(player.ID); {
		case errors.Is(err, lobby.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "only the owner can finalize scores")
			return
		case errors.Is(err, lobby.ErrInvalidPhase):
			writeError(w, http.StatusConflict, "lobby is not in the voting phase")
			return
		case err != nil:
			s.Logger.Errorf("failed to finalize scores for lobby %s: %v", lobbyID, err)
			writeError(w, http.StatusInternalServerError, "failed to finalize scores")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"scores": lb.FinalScores(),
		})
	}
}
