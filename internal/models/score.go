package models

import "github.com/google/uuid"

// FinalScore is the aggregated end-of-game result for one player. It is
// derived from the stored votes and recordings, never mutated directly.
// TotalScore sums human vote scores across all rounds; AIScore sums the
// per-round AI scores.
type FinalScore struct {
	UserID     uuid.UUID `json:"userId"`
	Name       string    `json:"name"`
	TotalScore int       `json:"totalScore"`
	AIScore    float64   `json:"aiScore"`
}
