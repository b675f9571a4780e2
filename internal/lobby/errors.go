// internal/lobby/errors.go
package lobby

import "errors"

// Errors returned by lobby operations. They are reported to the invoking
// caller only and never broadcast to other lobby members.
var (
	// ErrNotFound means no active lobby matches the given id or code.
	ErrNotFound = errors.New("lobby not found")

	// ErrPlayerNotFound means the acting player is not on the lobby roster.
	ErrPlayerNotFound = errors.New("player is not in this lobby")

	// ErrPermissionDenied means a non-owner attempted an owner-only action.
	ErrPermissionDenied = errors.New("only the lobby owner can do that")

	// ErrLobbyFull means the roster already holds maxPlayers players.
	ErrLobbyFull = errors.New("lobby is full")

	// ErrAlreadyStarted means a join arrived after the game started.
	ErrAlreadyStarted = errors.New("game has already started")

	// ErrInvalidPhase means the action does not match the current phase.
	ErrInvalidPhase = errors.New("action not allowed in the current game phase")

	// ErrInvalidVote covers self-votes, out-of-range scores and conflicting
	// duplicate votes.
	ErrInvalidVote = errors.New("invalid vote")

	// ErrValidation means the lobby configuration is unusable, e.g. neither
	// aiRate nor humanRate selected or totalRounds out of range.
	ErrValidation = errors.New("invalid lobby configuration")

	// ErrNotEnoughPlayers means a start was attempted with fewer than two
	// players on the roster.
	ErrNotEnoughPlayers = errors.New("at least two players are required to start")
)
