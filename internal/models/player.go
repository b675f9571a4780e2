package models

import "github.com/google/uuid"

// Player is one member of a lobby roster. The roster preserves join order,
// which doubles as the turn order once the game starts.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	PhotoURL string    `json:"photoUrl,omitempty"`
	Emoji    string    `json:"emoji,omitempty"`
}
