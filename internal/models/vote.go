package models

import "github.com/google/uuid"

// VoteScoreMin and VoteScoreMax bound the rating a voter can give.
const (
	VoteScoreMin = 1
	VoteScoreMax = 5
)

// Vote is a single player's rating of another player's recording for one
// round. At most one vote exists per (voter, target, round).
type Vote struct {
	LobbyID      uuid.UUID `json:"-"`
	VoterID      uuid.UUID `json:"voterId"`
	TargetUserID uuid.UUID `json:"targetUserId"`
	Round        int       `json:"round"`
	Score        int       `json:"score"`
}
