// internal/scorer/scorer.go

// Package scorer is the boundary to the external AI rating service. The
// coordinator treats it as an opaque number source: a recording goes in, a
// score comes out. Failures and timeouts are absorbed by callers; the game
// proceeds with a null AI score rather than blocking on the service.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Scorer rates a single recording.
type Scorer interface {
	ScoreRecording(ctx context.Context, audioURL string) (float64, error)
}

// HTTPScorer calls a remote scoring endpoint.
type HTTPScorer struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPScorer builds a scorer with the given request timeout. The timeout
// is the cap on how long a round-end waits for scoring.
func NewHTTPScorer(baseURL string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// ScoreRecording posts the recording reference and returns the numeric
// score. Any transport or decode failure is returned to the caller, which
// treats it as "no AI score" and moves on.
func (s *HTTPScorer) ScoreRecording(ctx context.Context, audioURL string) (float64, error) {
	body, err := json.Marshal(map[string]string{"url": audioURL})
	if err != nil {
		return 0, fmt.Errorf("encoding scorer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building scorer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var out struct {
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding scorer response: %w", err)
	}
	return out.Score, nil
}
