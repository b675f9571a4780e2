// internal/lobby/store.go
package lobby

import (
	"context"

	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/models"
)

// Store is the write-through persistence boundary for recordings and votes.
// The in-memory lobby stays authoritative; writes happen asynchronously so
// the per-lobby lock is never held across I/O. Implementations live in
// internal/database; tests run with a nil Store.
type Store interface {
	SaveRecording(ctx context.Context, rec models.Recording) error
	SaveVote(ctx context.Context, v models.Vote) error
	SetAIScore(ctx context.Context, lobbyID, userID uuid.UUID, round int, score float64) error

	// PurgeLobby removes every recording and vote tied to a deleted lobby.
	PurgeLobby(ctx context.Context, lobbyID uuid.UUID) error
}

// JournalFn publishes one broadcast event to the event journal. seq is the
// per-lobby sequence number assigned under the lobby lock. Implementations
// must not block; the lobby calls this from a goroutine.
type JournalFn func(lobbyID uuid.UUID, seq int, event string, payload map[string]interface{})
