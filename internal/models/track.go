package models

// Track is one song a round is played against. The reversed clip is what
// players hear and try to sing back; the original is revealed afterwards.
type Track struct {
	ID               int    `json:"id"`
	Title            string `json:"title"`
	Artist           string `json:"artist"`
	AlbumCoverURL    string `json:"albumCover,omitempty"`
	AudioURL         string `json:"audioFile"`
	ReversedAudioURL string `json:"reversedAudio"`
}
