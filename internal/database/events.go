// internal/database/events.go
package database

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

// InsertLobbyEventTx archives a single broadcast event inside an existing
// transaction. Used by the historian's batch flush.
func InsertLobbyEventTx(ctx context.Context, tx pgx.Tx, lobbyID string, seq int, event string, payload map[string]interface{}, ts int64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q := `
	INSERT INTO lobby_events (lobby_id, seq, event_type, payload, emitted_at)
	VALUES ($1, $2, $3, $4, to_timestamp($5 / 1000.0))
	ON CONFLICT (lobby_id, seq) DO NOTHING
	`
	_, err = tx.Exec(ctx, q, lobbyID, seq, event, data, ts)
	return err
}
