// internal/tracks/tracks.go

// Package tracks supplies the songs a game is played against. The
// coordinator only needs track metadata; the audio itself is served by
// external storage/CDN.
package tracks

import (
	"context"
	"errors"
	"math/rand"

	"github.com/reverso-game/reverso/internal/models"
)

// Source selects n tracks for a new game. Implementations may call remote
// services; callers pass a context and must not hold lobby locks.
type Source interface {
	SelectTracks(ctx context.Context, n int) ([]models.Track, error)
}

// ErrNotEnoughTracks means the source cannot satisfy the requested count.
var ErrNotEnoughTracks = errors.New("track source is exhausted")

// Catalog is a static in-process Source.
type Catalog struct {
	Tracks []models.Track
}

// DefaultCatalog returns the built-in song list.
func DefaultCatalog() *Catalog {
	return &Catalog{Tracks: []models.Track{
		{
			ID:               1,
			Title:            "We Are The Champions",
			Artist:           "Queen",
			AlbumCoverURL:    "/assets/images/queen-cover.webp",
			AudioURL:         "/assets/audio/queen-we-are-the-champions_clip.mp3",
			ReversedAudioURL: "/assets/reversed-audio/queen-we-are-the-champions_clip-reversed.mp3",
		},
		{
			ID:               2,
			Title:            "Gangnam Style",
			Artist:           "PSY",
			AlbumCoverURL:    "/assets/images/gangnam-style-cover.png",
			AudioURL:         "/assets/audio/psy-gangnam-style.mp3",
			ReversedAudioURL: "/assets/reversed-audio/psy-gangnam-style-reversed.mp3",
		},
		{
			ID:               3,
			Title:            "Another One Bites The Dust",
			Artist:           "Queen",
			AlbumCoverURL:    "/assets/images/queen-the-game-cover.png",
			AudioURL:         "/assets/audio/queen-another-one-bites-the-dust.mp3",
			ReversedAudioURL: "/assets/reversed-audio/queen-another-one-bites-the-dust-reversed.mp3",
		},
	}}
}

// SelectTracks picks n distinct tracks at random. It never repeats a song
// within one game, so the catalog must hold at least n entries.
func (c *Catalog) SelectTracks(_ context.Context, n int) ([]models.Track, error) {
	if n > len(c.Tracks) {
		return nil, ErrNotEnoughTracks
	}
	shuffled := make([]models.Track, len(c.Tracks))
	copy(shuffled, c.Tracks)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n], nil
}
