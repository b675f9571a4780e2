// internal/handlers/auth.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/auth"
	"github.com/reverso-game/reverso/internal/models"
)

// IssueTokenHandler mints a signed token for a player profile. Players are
// ephemeral; the client supplies a display name plus cosmetics and gets back
// an identity it presents on every other endpoint.
func (s *Server) IssueTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			PhotoURL string `json:"photoUrl"`
			Emoji    string `json:"emoji"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad token request payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		id, err := uuid.NewRandom()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to allocate player id")
			return
		}
		player := models.Player{
			ID:       id,
			Name:     req.Name,
			PhotoURL: req.PhotoURL,
			Emoji:    req.Emoji,
		}

		token, err := auth.CreateJWT(player)
		if err != nil {
			s.Logger.Errorf("failed to sign token for player %s: %v", player.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to sign token")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token":  token,
			"player": player,
		})
	}
}
