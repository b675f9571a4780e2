// internal/handlers/server.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/reverso-game/reverso/internal/lobby"
	"github.com/reverso-game/reverso/internal/middleware"
	"github.com/reverso-game/reverso/internal/scorer"
	"github.com/reverso-game/reverso/internal/tracks"
)

// Server bundles the lobby registry with its collaborators so handlers can
// share them without globals.
type Server struct {
	Registry *lobby.Registry
	Tracks   tracks.Source
	Scorer   scorer.Scorer
	Logger   *logrus.Logger
}

// NewServer wires a Server around an empty registry.
func NewServer(logger *logrus.Logger) *Server {
	return &Server{
		Registry: lobby.NewRegistry(),
		Tracks:   tracks.DefaultCatalog(),
		Logger:   logger,
	}
}

// Routes builds the full HTTP surface: REST endpoints under /api plus the
// websocket hub the clients attach to.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(s.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/token", s.IssueTokenHandler())

		r.Route("/lobby", func(r chi.Router) {
			r.Post("/create", s.CreateLobbyHandler())
			r.Get("/list", s.ListLobbiesHandler())
			r.Get("/exists/{code}", s.LobbyExistsHandler())
			r.Delete("/{lobbyID}", s.DeleteLobbyHandler())
			r.Get("/{code}/recordings", s.ListRecordingsHandler())
			r.Post("/{lobbyID}/votes", s.SubmitVotesHandler())
			r.Post("/{lobbyID}/calculate-final-scores", s.CalculateFinalScoresHandler())
		})

		r.Post("/recordings/upload/{lobbyID}/{round}", s.UploadRecordingHandler())
	})

	r.Get("/lobbyHub", s.LobbyHubHandler())

	return r
}
