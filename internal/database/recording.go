// internal/database/recording.go
package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reverso-game/reverso/internal/models"
)

// UpsertRecording writes a recording reference, overwriting any previous
// submission for the same (lobby, user, round). Matches the coordinator's
// idempotent-overwrite semantics for re-submissions.
func UpsertRecording(ctx context.Context, rec models.Recording) error {
	q := `
	INSERT INTO recordings (lobby_id, user_id, round, url, ai_score)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (lobby_id, user_id, round)
	DO UPDATE SET url = EXCLUDED.url, ai_score = EXCLUDED.ai_score
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, rec.LobbyID, rec.UserID, rec.Round, rec.URL, rec.AIScore)
		return err
	})
}

// SetRecordingAIScore fills in the asynchronously computed AI score.
func SetRecordingAIScore(ctx context.Context, lobbyID, userID uuid.UUID, round int, score float64) error {
	q := `UPDATE recordings SET ai_score = $4 WHERE lobby_id = $1 AND user_id = $2 AND round = $3`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, lobbyID, userID, round, score)
		return err
	})
}

// GetRecordings returns every recording for a lobby, ordered by round then
// submission time.
func GetRecordings(ctx context.Context, lobbyID uuid.UUID) ([]models.Recording, error) {
	q := `
	SELECT lobby_id, user_id, round, url, ai_score
	FROM recordings
	WHERE lobby_id = $1
	ORDER BY round, user_id
	`
	rows, err := DB.Query(ctx, q, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		var rec models.Recording
		if err := rows.Scan(&rec.LobbyID, &rec.UserID, &rec.Round, &rec.URL, &rec.AIScore); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteRecordings removes all recordings tied to a lobby.
func DeleteRecordings(ctx context.Context, lobbyID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM recordings WHERE lobby_id = $1`, lobbyID)
		return err
	})
}
