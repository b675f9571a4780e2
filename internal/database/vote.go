// internal/database/vote.go
package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reverso-game/reverso/internal/models"
)

// InsertVote persists a single vote. A repeated identical submission is a
// no-op thanks to the primary key; the coordinator rejects conflicting
// duplicates before they reach the database.
func InsertVote(ctx context.Context, v models.Vote) error {
	q := `
	INSERT INTO votes (lobby_id, voter_id, target_user_id, round, score)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (lobby_id, voter_id, target_user_id, round) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, v.LobbyID, v.VoterID, v.TargetUserID, v.Round, v.Score)
		return err
	})
}

// GetVotes returns all votes cast in a lobby.
func GetVotes(ctx context.Context, lobbyID uuid.UUID) ([]models.Vote, error) {
	q := `
	SELECT lobby_id, voter_id, target_user_id, round, score
	FROM votes
	WHERE lobby_id = $1
	`
	rows, err := DB.Query(ctx, q, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.LobbyID, &v.VoterID, &v.TargetUserID, &v.Round, &v.Score); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// DeleteVotes removes all votes tied to a lobby.
func DeleteVotes(ctx context.Context, lobbyID uuid.UUID) error {
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM votes WHERE lobby_id = $1`, lobbyID)
		return err
	})
}
