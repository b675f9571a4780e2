// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/reverso-game/reverso/internal/lobby"
	"github.com/reverso-game/reverso/internal/middleware"
)

// Invocation payloads decoded from incoming hub packets. The packet's "type"
// field selects which one applies; the rest of the packet fills it in.
type joinLobbyInvocation struct {
	Code string `mapstructure:"code"`
}

type leaveLobbyInvocation struct {
	LobbyID string `mapstructure:"lobbyId"`
}

type startGameInvocation struct {
	LobbyID string `mapstructure:"lobbyId"`
}

type nextPlayerInvocation struct {
	LobbyID string `mapstructure:"lobbyId"`
}

type notifyPlayerVotedInvocation struct {
	LobbyID string `mapstructure:"lobbyId"`
}

// LobbyHubHandler is the websocket entry point every client keeps open for
// the lifetime of a session. A connection starts unattached; a JoinLobby
// invocation binds it to a lobby, and from then on the lobby's broadcasts
// flow out through the write pump.
func (s *Server) LobbyHubHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby" {
			c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
			return
		}

		player, err := authenticate(r)
		if err != nil {
			c.Close(InvalidAuthTokenError, "invalid or expired token")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &lobby.Connection{
			UserID:  player.ID,
			Player:  player,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 16),
		}

		middleware.LogWebSocketConnect(s.Logger, remoteAddr, r.URL.Path)
		s.Logger.Infof("Player %v (%s) connected to hub", player.ID, remoteAddr)

		go s.writePump(ctx, c, conn)

		// Blocks until the connection drops or the client leaves.
		current := s.readPump(ctx, c, conn)

		// An abrupt drop keeps the roster slot for the grace window. An
		// explicit LeaveLobby already detached the session, so current is nil.
		if current != nil {
			s.Logger.Infof("Player %v dropped from lobby %s, starting grace period", player.ID, current.Code)
			current.Disconnect(conn)
		}
		middleware.LogWebSocketDisconnect(s.Logger, remoteAddr, r.URL.Path, nil)
	}
}

// readPump handles incoming hub invocations until the connection dies.
// Returns the lobby the session was still attached to, if any.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, conn *lobby.Connection) *lobby.Lobby {
	var current *lobby.Lobby

	for {
		select {
		case <-ctx.Done():
			return current
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				s.Logger.Infof("Hub: websocket closed normally for player %v", conn.UserID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				s.Logger.Warnf("Hub: read error for player %v: %v (CloseStatus: %d)", conn.UserID, err, closeStatus)
			}
			return current
		}
		if typ != websocket.MessageText {
			s.Logger.Warnf("Hub: non-text message type %d from player %v, ignoring", typ, conn.UserID)
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			s.Logger.Warnf("Hub: invalid json from player %v: %v", conn.UserID, err)
			conn.WriteError("Invalid JSON format")
			continue
		}

		current = s.handleInvocation(ctx, packet, conn, current)
	}
}

// handleInvocation dispatches one decoded hub packet. Returns the lobby the
// session is attached to afterwards.
func (s *Server) handleInvocation(ctx context.Context, packet map[string]interface{}, conn *lobby.Connection, current *lobby.Lobby) *lobby.Lobby {
	action, _ := packet["type"].(string)

	switch action {
	case "JoinLobby":
		var inv joinLobbyInvocation
		if err := mapstructure.Decode(packet, &inv); err != nil || inv.Code == "" {
			conn.WriteError("JoinLobby requires a lobby code")
			return current
		}
		lb, err := s.Registry.GetByCode(strings.ToUpper(inv.Code))
		if err != nil {
			conn.WriteError("Lobby not found")
			return current
		}
		if current != nil && current != lb {
			// One lobby per hub connection. Leaving closes the socket, so
			// switching requires a fresh connection.
			conn.WriteError("Already in a lobby")
			return current
		}
		if err := lb.Attach(conn); err != nil {
			conn.WriteError(joinFailureMessage(err))
			return nil
		}
		return lb

	case "LeaveLobby":
		if current == nil {
			conn.WriteError("Not in a lobby")
			return nil
		}
		if err := current.Leave(conn.UserID); err != nil {
			s.Logger.Warnf("Hub: leave failed for player %v: %v", conn.UserID, err)
		}
		return nil

	case "StartGame":
		if current == nil {
			conn.WriteError("Not in a lobby")
			return nil
		}
		if err := current.EnsureCanStart(conn.UserID); err != nil {
			conn.WriteError(startFailureMessage(err))
			return current
		}
		current.Mu.Lock()
		rounds := current.TotalRounds
		current.Mu.Unlock()

		// One song per round, picked before the state transition so the
		// lobby lock is never held across the track source call.
		selected, err := s.Tracks.SelectTracks(ctx, rounds)
		if err != nil {
			s.Logger.Errorf("Hub: track selection failed for lobby %s: %v", current.Code, err)
			conn.WriteError("Failed to pick songs, try again")
			return current
		}
		if err := current.StartGame(conn.UserID, selected); err != nil {
			conn.WriteError(startFailureMessage(err))
		}
		return current

	case "NextPlayer":
		if current == nil {
			conn.WriteError("Not in a lobby")
			return nil
		}
		switch err := current.NextPlayer(conn.UserID); {
		case errors.Is(err, lobby.ErrPermissionDenied):
			conn.WriteError("Only the owner can advance the turn")
		case errors.Is(err, lobby.ErrInvalidPhase):
			conn.WriteError("Not in the listening phase")
		}
		return current

	case "NotifyPlayerVoted":
		if current == nil {
			conn.WriteError("Not in a lobby")
			return nil
		}
		if err := current.NotifyVoted(conn.UserID); err != nil {
			conn.WriteError("Not in the voting phase")
		}
		return current

	default:
		s.Logger.Warnf("Hub: unknown action '%s' from player %v", action, conn.UserID)
		conn.WriteError(fmt.Sprintf("Unknown action type: %s", action))
		return current
	}
}

func joinFailureMessage(err error) string {
	switch {
	case errors.Is(err, lobby.ErrLobbyFull):
		return "Lobby is full"
	case errors.Is(err, lobby.ErrAlreadyStarted):
		return "Game already started"
	default:
		return "Failed to join lobby"
	}
}

func startFailureMessage(err error) string {
	switch {
	case errors.Is(err, lobby.ErrPermissionDenied):
		return "Only the owner can start the game"
	case errors.Is(err, lobby.ErrAlreadyStarted):
		return "Game already started"
	case errors.Is(err, lobby.ErrNotEnoughPlayers):
		return "Need at least two players"
	default:
		return "Failed to start game"
	}
}

// writePump drains the connection's out channel to the websocket and pings
// periodically so dead peers are detected.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *lobby.Connection) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	defer func() {
		_ = c.Close(websocket.StatusGoingAway, "Write pump stopping")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.Logger.Warnf("Hub: failed to marshal outgoing msg for player %v: %v", conn.UserID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Logger.Warnf("Hub: failed to write to websocket for player %v: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.Logger.Warnf("Hub: failed to ping player %v: %v. Assuming disconnect.", conn.UserID, err)
				return
			}
		}
	}
}
