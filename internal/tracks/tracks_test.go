// internal/tracks/tracks_test.go
package tracks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTracksDistinct(t *testing.T) {
	c := DefaultCatalog()

	selected, err := c.SelectTracks(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, selected, 3)

	seen := make(map[int]bool)
	for _, tr := range selected {
		assert.False(t, seen[tr.ID], "track %d repeated within one game", tr.ID)
		seen[tr.ID] = true
		assert.NotEmpty(t, tr.ReversedAudioURL)
	}
}

func TestSelectTracksExhausted(t *testing.T) {
	c := DefaultCatalog()
	_, err := c.SelectTracks(context.Background(), len(c.Tracks)+1)
	assert.ErrorIs(t, err, ErrNotEnoughTracks)
}
