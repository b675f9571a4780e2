// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/lobby"
)

// CreateLobbyHandler creates an in-memory lobby with the caller as owner and
// sole roster member. The join happens later over the websocket hub.
func (s *Server) CreateLobbyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player, err := authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		var cfg lobby.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "bad lobby request payload")
			return
		}

		lb, err := s.Registry.CreateLobby(player, cfg)
		if err != nil {
			if errors.Is(err, lobby.ErrValidation) {
				writeError(w, http.StatusBadRequest, "invalid lobby settings")
				return
			}
			s.Logger.Errorf("failed to create lobby for %s: %v", player.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to create lobby")
			return
		}

		lb.Mu.Lock()
		defer lb.Mu.Unlock()
		writeJSON(w, http.StatusCreated, lb)
	}
}

// ListLobbiesHandler returns all public lobbies still in the waiting phase.
func (s *Server) ListLobbiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticate(r); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		type summary struct {
			Code        string `json:"lobbyCode"`
			PlayerCount int    `json:"playerCount"`
			MaxPlayers  int    `json:"maxPlayers"`
			TotalRounds int    `json:"totalRounds"`
		}
		out := []summary{}
		for _, lb := range s.Registry.Lobbies() {
			lb.Mu.Lock()
			if !lb.IsPrivate && !lb.HasGameStarted {
				out = append(out, summary{
					Code:        lb.Code,
					PlayerCount: len(lb.Players),
					MaxPlayers:  lb.MaxPlayers,
					TotalRounds: lb.TotalRounds,
				})
			}
			lb.Mu.Unlock()
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// LobbyExistsHandler reports whether a join code maps to an active lobby,
// so clients can validate a code before opening the websocket.
func (s *Server) LobbyExistsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		_, err := s.Registry.GetByCode(code)
		writeJSON(w, http.StatusOK, map[string]bool{"exists": err == nil})
	}
}

// DeleteLobbyHandler tears a lobby down on the owner's request.
func (s *Server) DeleteLobbyHandler() http.HandlerFunc {
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

		switch err := s.Registry.DeleteLobby(lobbyID, player.ID); {
		case errors.Is(err, lobby.ErrNotFound):
			writeError(w, http.StatusNotFound, "lobby not found")
		case errors.Is(err, lobby.ErrPermissionDenied):
			writeError(w, http.StatusForbidden, "only the owner can delete the lobby")
		case err != nil:
			s.Logger.Errorf("failed to delete lobby %s: %v", lobbyID, err)
			writeError(w, http.StatusInternalServerError, "failed to delete lobby")
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
