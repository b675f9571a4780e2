package models

import "github.com/google/uuid"

// Recording references an audio clip a player submitted for a round.
// The clip itself lives in external storage; the coordinator only tracks
// the reference and the AI score that arrives asynchronously (nil until
// the external scorer responds, and stays nil if scoring times out).
type Recording struct {
	LobbyID uuid.UUID `json:"-"`
	UserID  uuid.UUID `json:"userId"`
	Round   int       `json:"round"`
	URL     string    `json:"url"`
	AIScore *float64  `json:"aiScore,omitempty"`
}
