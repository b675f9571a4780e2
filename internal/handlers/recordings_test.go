// internal/handlers/recordings_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reverso-game/reverso/internal/lobby"
	"github.com/reverso-game/reverso/internal/models"
)

// stubScorer returns a fixed score without any network calls.
type stubScorer struct {
	score float64
}

func (s stubScorer) ScoreRecording(ctx context.Context, audioURL string) (float64, error) {
	return s.score, nil
}

func attachPlayer(t *testing.T, lb *lobby.Lobby, p models.Player) *lobby.Connection {
	t.Helper()
	conn := &lobby.Connection{
		UserID:  p.ID,
		Player:  p,
		OutChan: make(chan map[string]interface{}, 64),
	}
	if err := lb.Attach(conn); err != nil {
		t.Fatalf("Attach(%s): %v", p.Name, err)
	}
	return conn
}

func TestUploadRecordingFlow(t *testing.T) {
	s := newTestServer(t)
	s.Scorer = stubScorer{score: 77.5}

	owner, ownerToken := mintToken(t, "alice")
	guest, guestToken := mintToken(t, "bob")

	lb, err := s.Registry.CreateLobby(owner, lobby.Config{AIRate: true, HumanRate: true, TotalRounds: 1})
	if err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	attachPlayer(t, lb, owner)
	attachPlayer(t, lb, guest)

	if err := lb.StartGame(owner.ID, []models.Track{{ID: 1, Title: "Song"}}); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	upload := func(token, url string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"url": url})
		req := httptest.NewRequest("POST", "/api/recordings/upload/"+lb.ID.String()+"/0", bytes.NewBuffer(body))
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		s.Routes().ServeHTTP(w, req)
		return w
	}

	if w := upload(ownerToken, "https://cdn/reverso/alice.m4a"); w.Code != http.StatusOK {
		t.Fatalf("owner upload: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := upload(guestToken, "https://cdn/reverso/bob.m4a"); w.Code != http.StatusOK {
		t.Fatalf("guest upload: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	lb.Mu.Lock()
	phase := lb.Phase
	lb.Mu.Unlock()
	if phase != lobby.PhaseListening {
		t.Fatalf("expected listening phase after both uploads, got %s", phase)
	}

	// The stub scorer runs on a goroutine; wait for both AI scores to land.
	deadline := time.Now().Add(time.Second)
	for {
		recs := lb.Recordings()
		scored := 0
		for _, rec := range recs {
			if rec.AIScore != nil && *rec.AIScore == 77.5 {
				scored++
			}
		}
		if scored == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("AI scores never attached, recordings: %+v", recs)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Uploading to a round the lobby is not recording is rejected.
	body, _ := json.Marshal(map[string]string{"url": "https://cdn/reverso/late.m4a"})
	req := httptest.NewRequest("POST", "/api/recordings/upload/"+lb.ID.String()+"/0", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 outside recording phase, got %d", w.Code)
	}
}

func TestListRecordings(t *testing.T) {
	s := newTestServer(t)
	owner, token := mintToken(t, "alice")
	guest, _ := mintToken(t, "bob")

	lb, err := s.Registry.CreateLobby(owner, lobby.Config{AIRate: true, TotalRounds: 1})
	if err != nil {
		t.Fatalf("CreateLobby: %v", err)
	}
	attachPlayer(t, lb, owner)
	attachPlayer(t, lb, guest)
	if err := lb.StartGame(owner.ID, []models.Track{{ID: 1}}); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if _, err := lb.SubmitRecording(owner.ID, 0, "https://cdn/reverso/alice.m4a"); err != nil {
		t.Fatalf("SubmitRecording: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/lobby/"+lb.Code+"/recordings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var recs []models.Recording
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 1 || recs[0].URL != "https://cdn/reverso/alice.m4a" {
		t.Fatalf("unexpected recordings: %+v", recs)
	}
}
