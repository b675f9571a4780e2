// internal/lobby/connection.go
package lobby

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/models"
)

// Connection is a single player's live presence in a lobby. The write pump
// owned by the transport layer drains OutChan; everything the lobby wants
// to tell this player goes through it.
type Connection struct {
	UserID uuid.UUID
	Player models.Player

	// Cancel stops the read/write goroutines tied to this connection.
	Cancel context.CancelFunc

	OutChan chan map[string]interface{}
	IsOwner bool
}

// Write pushes a message onto the player's OutChan without blocking. A full
// or closed channel drops the message; a disconnected client re-fetches the
// full lobby state on reconnect, so dropped events are recoverable.
func (conn *Connection) Write(msg map[string]interface{}) {
	select {
	case conn.OutChan <- msg:
	default:
		event, _ := msg["type"].(string)
		log.Printf("Connection %s: OutChan closed or full, dropped event %q", conn.UserID, event)
	}
}

// WriteError sends an error event to this player only.
func (conn *Connection) WriteError(msg string) {
	conn.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}
