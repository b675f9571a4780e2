// internal/scoring/scoring.go

// Package scoring turns the stored votes and recordings of a finished game
// into a ranked scoreboard. It is a pure function of its inputs: identical
// vote/recording sets always produce identical rankings.
package scoring

import (
	"sort"

	"github.com/reverso-game/reverso/internal/models"
)

// FinalScores aggregates per-player totals and returns them ranked best
// first. Human vote scores are summed per voter per round and across rounds;
// AI scores are summed across rounds. Ranking uses the human total when
// humanRate is enabled, the AI total otherwise. Ties are broken by original
// join order (players must be passed in that order), so the scoreboard is
// deterministic.
func FinalScores(players []models.Player, votes []models.Vote, recordings []models.Recording, humanRate bool) []models.FinalScore {
	voteTotals := make(map[string]int, len(players))
	aiTotals := make(map[string]float64, len(players))

	for _, v := range votes {
		voteTotals[v.TargetUserID.String()] += v.Score
	}
	for _, rec := range recordings {
		if rec.AIScore != nil {
			aiTotals[rec.UserID.String()] += *rec.AIScore
		}
	}

	scores := make([]models.FinalScore, 0, len(players))
	joinOrder := make(map[string]int, len(players))
	for i, p := range players {
		key := p.ID.String()
		joinOrder[key] = i
		scores = append(scores, models.FinalScore{
			UserID:     p.ID,
			Name:       p.Name,
			TotalScore: voteTotals[key],
			AIScore:    aiTotals[key],
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if humanRate {
			if a.TotalScore != b.TotalScore {
				return a.TotalScore > b.TotalScore
			}
		} else {
			if a.AIScore != b.AIScore {
				return a.AIScore > b.AIScore
			}
		}
		return joinOrder[a.UserID.String()] < joinOrder[b.UserID.String()]
	})
	return scores
}
