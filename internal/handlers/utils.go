package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/reverso-game/reverso/internal/auth"
	"github.com/reverso-game/reverso/internal/models"
)

// bearerToken pulls the access token from the Authorization header, falling
// back to the access_token query parameter for websocket clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

// authenticate resolves the calling player from the request token.
func authenticate(r *http.Request) (models.Player, error) {
	return auth.AuthenticateJWT(bearerToken(r))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
