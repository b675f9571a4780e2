// internal/database/store.go
package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reverso-game/reverso/internal/models"
)

// LobbyStore is the Postgres write-through store behind the in-memory
// lobby coordinator.
type LobbyStore struct{}

func (LobbyStore) SaveRecording(ctx context.Context, rec models.Recording) error {
	return UpsertRecording(ctx, rec)
}

func (LobbyStore) SaveVote(ctx context.Context, v models.Vote) error {
	return InsertVote(ctx, v)
}

func (LobbyStore) SetAIScore(ctx context.Context, lobbyID, userID uuid.UUID, round int, score float64) error {
	return SetRecordingAIScore(ctx, lobbyID, userID, round, score)
}

// PurgeLobby removes everything a finished or deleted lobby left behind.
// Archived lobby_events rows are kept; they are the historian's record.
func (LobbyStore) PurgeLobby(ctx context.Context, lobbyID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE lobby_id = $1`, lobbyID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM recordings WHERE lobby_id = $1`, lobbyID)
		return err
	})
}
