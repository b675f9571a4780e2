// internal/lobby/lobby_test.go
package lobby

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reverso-game/reverso/internal/models"
)

func newTestPlayer(name string) models.Player {
	return models.Player{ID: uuid.New(), Name: name, Emoji: "🎤"}
}

func newTestConn(p models.Player) *Connection {
	return &Connection{
		UserID:  p.ID,
		Player:  p,
		OutChan: make(chan map[string]interface{}, 64),
	}
}

// drainEvents empties a connection's out channel and returns everything read.
func drainEvents(conn *Connection) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case msg, ok := <-conn.OutChan:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// lastEventOfType scans drained events for the most recent one of a type.
func lastEventOfType(events []map[string]interface{}, typ string) map[string]interface{} {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i]["type"] == typ {
			return events[i]
		}
	}
	return nil
}

func defaultConfig() Config {
	return Config{AIRate: true, HumanRate: true, TotalRounds: 2, MaxPlayers: 4}
}

// setupLobby creates a lobby with n attached players. The owner is players[0].
func setupLobby(t *testing.T, n int, cfg Config) (*Lobby, []models.Player, []*Connection) {
	t.Helper()

	players := make([]models.Player, n)
	conns := make([]*Connection, n)
	for i := range players {
		players[i] = newTestPlayer("player" + string(rune('A'+i)))
		conns[i] = newTestConn(players[i])
	}

	l, err := New(players[0], "TESTAB", cfg)
	require.NoError(t, err)
	require.NoError(t, l.Attach(conns[0]))
	for i := 1; i < n; i++ {
		require.NoError(t, l.Attach(conns[i]))
	}
	for _, c := range conns {
		drainEvents(c)
	}
	return l, players, conns
}

// startGame runs the waiting->recording transition with one dummy track per round.
func startGame(t *testing.T, l *Lobby, owner models.Player) {
	t.Helper()
	tracks := make([]models.Track, l.TotalRounds)
	for i := range tracks {
		tracks[i] = models.Track{ID: i + 1, Title: "Song"}
	}
	require.NoError(t, l.StartGame(owner.ID, tracks))
}

func TestNewValidation(t *testing.T) {
	owner := newTestPlayer("owner")

	_, err := New(owner, "AAAAAA", Config{TotalRounds: 1})
	assert.ErrorIs(t, err, ErrValidation, "at least one rating mode is required")

	_, err = New(owner, "AAAAAA", Config{AIRate: true, TotalRounds: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = New(owner, "AAAAAA", Config{AIRate: true, TotalRounds: 4})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = New(owner, "AAAAAA", Config{AIRate: true, TotalRounds: 1, MaxPlayers: 1})
	assert.ErrorIs(t, err, ErrValidation)

	l, err := New(owner, "AAAAAA", Config{AIRate: true, TotalRounds: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxPlayers, l.MaxPlayers)
	assert.Equal(t, PhaseWaiting, l.Phase)
	assert.Equal(t, owner.ID, l.OwnerID)
	assert.Len(t, l.Players, 1)
}

func TestAttachBroadcastsAndSnapshot(t *testing.T) {
	l, players, conns := setupLobby(t, 1, defaultConfig())

	joiner := newTestPlayer("joiner")
	jc := newTestConn(joiner)
	require.NoError(t, l.Attach(jc))

	ownerEvents := drainEvents(conns[0])
	joined := lastEventOfType(ownerEvents, "playerJoined")
	require.NotNil(t, joined, "owner should see playerJoined")
	assert.Equal(t, joiner, joined["player"])

	joinerEvents := drainEvents(jc)
	snapshot := lastEventOfType(joinerEvents, "joinedLobby")
	require.NotNil(t, snapshot, "joiner should receive the lobby snapshot")
	assert.Equal(t, "TESTAB", snapshot["lobbyCode"])
	assert.Equal(t, players[0].ID.String(), snapshot["ownerId"])
	assert.Equal(t, false, snapshot["hasGameStarted"])
	assert.Len(t, snapshot["players"], 2)
}

func TestAttachRejectsFullAndStarted(t *testing.T) {
	l, _, _ := setupLobby(t, 2, Config{AIRate: true, TotalRounds: 1, MaxPlayers: 2})

	err := l.Attach(newTestConn(newTestPlayer("third")))
	assert.ErrorIs(t, err, ErrLobbyFull)

	l2, players2, _ := setupLobby(t, 2, defaultConfig())
	startGame(t, l2, players2[0])
	err = l2.Attach(newTestConn(newTestPlayer("late")))
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStartGameChecks(t *testing.T) {
	l, players, _ := setupLobby(t, 1, defaultConfig())

	err := l.StartGame(players[0].ID, []models.Track{{ID: 1}, {ID: 2}})
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	l2, players2, _ := setupLobby(t, 2, defaultConfig())
	err = l2.StartGame(players2[1].ID, []models.Track{{ID: 1}, {ID: 2}})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	startGame(t, l2, players2[0])
	err = l2.StartGame(players2[0].ID, []models.Track{{ID: 1}, {ID: 2}})
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	assert.Equal(t, PhaseRecording, l2.Phase)
	assert.Equal(t, 0, l2.CurrentRound)
	assert.True(t, l2.HasGameStarted)
}

func TestStartGameBroadcastsTracks(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())
	startGame(t, l, players[0])

	events := drainEvents(conns[1])
	started := lastEventOfType(events, "gameStarted")
	require.NotNil(t, started)
	assert.Equal(t, l.ID.String(), started["lobbyId"])
	tracks, ok := started["tracks"].([]models.Track)
	require.True(t, ok)
	assert.Len(t, tracks, l.TotalRounds)
}

func TestRecordingRoundCompletion(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())
	startGame(t, l, players[0])

	_, err := l.SubmitRecording(players[0].ID, 0, "https://cdn/reverso/a0.m4a")
	require.NoError(t, err)
	assert.Equal(t, PhaseRecording, l.Phase, "round incomplete with one recording outstanding")

	// Re-submission overwrites without erroring or double-counting.
	rec, err := l.SubmitRecording(players[0].ID, 0, "https://cdn/reverso/a0-retake.m4a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/reverso/a0-retake.m4a", rec.URL)
	assert.Equal(t, PhaseRecording, l.Phase)

	_, err = l.SubmitRecording(players[1].ID, 0, "https://cdn/reverso/b0.m4a")
	require.NoError(t, err)
	assert.Equal(t, PhaseListening, l.Phase, "round completes when every member has recorded")
	assert.Equal(t, 0, l.CurrentPlayerIndex)

	events := drainEvents(conns[1])
	updated := lastEventOfType(events, "lobbyUpdated")
	require.NotNil(t, updated)
	assert.Equal(t, string(PhaseListening), updated["phase"])
	byRound, ok := updated["recordingsByRound"].([][]*models.Recording)
	require.True(t, ok)
	require.Len(t, byRound, 1)
	require.Len(t, byRound[0], 2)
	assert.Equal(t, "https://cdn/reverso/a0-retake.m4a", byRound[0][0].URL)
}

func TestSubmitRecordingRejections(t *testing.T) {
	l, players, _ := setupLobby(t, 2, defaultConfig())

	_, err := l.SubmitRecording(players[0].ID, 0, "https://cdn/x.m4a")
	assert.ErrorIs(t, err, ErrInvalidPhase, "no recording before the game starts")

	startGame(t, l, players[0])

	_, err = l.SubmitRecording(uuid.New(), 0, "https://cdn/x.m4a")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = l.SubmitRecording(players[0].ID, 1, "https://cdn/x.m4a")
	assert.ErrorIs(t, err, ErrInvalidPhase, "wrong round is rejected")
}

func completeRound(t *testing.T, l *Lobby, players []models.Player, round int) {
	t.Helper()
	for i, p := range players {
		_, err := l.SubmitRecording(p.ID, round, "https://cdn/reverso/clip"+string(rune('0'+i))+".m4a")
		require.NoError(t, err)
	}
	require.Equal(t, PhaseListening, l.Phase)
}

func TestNextPlayerAdvancesTurnsAndRounds(t *testing.T) {
	l, players, conns := setupLobby(t, 3, defaultConfig())
	startGame(t, l, players[0])
	completeRound(t, l, players, 0)
	drainEvents(conns[2])

	require.ErrorIs(t, l.NextPlayer(players[1].ID), ErrPermissionDenied)

	require.NoError(t, l.NextPlayer(players[0].ID))
	assert.Equal(t, 1, l.CurrentPlayerIndex)

	events := drainEvents(conns[2])
	changed := lastEventOfType(events, "currentPlayerChanged")
	require.NotNil(t, changed)
	assert.Equal(t, players[1].ID.String(), changed["playerId"])

	require.NoError(t, l.NextPlayer(players[0].ID))
	assert.Equal(t, 2, l.CurrentPlayerIndex)

	// Past the last listener: next round begins recording again.
	require.NoError(t, l.NextPlayer(players[0].ID))
	assert.Equal(t, PhaseRecording, l.Phase)
	assert.Equal(t, 1, l.CurrentRound)
	assert.Equal(t, 0, l.CurrentPlayerIndex)

	require.ErrorIs(t, l.NextPlayer(players[0].ID), ErrInvalidPhase)

	completeRound(t, l, players, 1)
	require.NoError(t, l.NextPlayer(players[0].ID))
	require.NoError(t, l.NextPlayer(players[0].ID))

	// Final round, final listener: the vote phase opens.
	require.NoError(t, l.NextPlayer(players[0].ID))
	assert.Equal(t, PhaseVoting, l.Phase)
}

func TestAIOnlyFlowSkipsVoting(t *testing.T) {
	l, players, conns := setupLobby(t, 2, Config{AIRate: true, TotalRounds: 1})
	startGame(t, l, players[0])
	completeRound(t, l, players, 0)

	require.NoError(t, l.SetAIScore(players[0].ID, 0, 87.5))
	require.NoError(t, l.SetAIScore(players[1].ID, 0, 42.0))
	drainEvents(conns[1])

	require.NoError(t, l.NextPlayer(players[0].ID))
	require.NoError(t, l.NextPlayer(players[0].ID))
	assert.Equal(t, PhaseFinished, l.Phase, "no voting phase without human rating")

	events := drainEvents(conns[1])
	ready := lastEventOfType(events, "finalScoresReady")
	require.NotNil(t, ready)
	scores, ok := ready["scores"].([]models.FinalScore)
	require.True(t, ok)
	require.Len(t, scores, 2)
	assert.Equal(t, players[0].ID, scores[0].UserID, "higher AI score ranks first")
	assert.InDelta(t, 87.5, scores[0].AIScore, 0.001)

	won := lastEventOfType(events, "playerWon")
	require.NotNil(t, won)
	assert.Equal(t, scores[0], won["winner"])

	err := l.SubmitVote(players[0].ID, players[1].ID, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidVote, "votes are rejected in ai-only lobbies")
}

func TestSubmitVoteRules(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())

	err := l.SubmitVote(players[0].ID, players[1].ID, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidPhase, "no voting before the game starts")

	startGame(t, l, players[0])
	completeRound(t, l, players, 0)
	drainEvents(conns[0])

	assert.ErrorIs(t, l.SubmitVote(players[0].ID, players[0].ID, 0, 3), ErrInvalidVote)
	assert.ErrorIs(t, l.SubmitVote(players[0].ID, players[1].ID, 0, 0), ErrInvalidVote)
	assert.ErrorIs(t, l.SubmitVote(players[0].ID, players[1].ID, 0, 6), ErrInvalidVote)
	assert.ErrorIs(t, l.SubmitVote(players[0].ID, players[1].ID, 1, 3), ErrInvalidPhase, "future round")
	assert.ErrorIs(t, l.SubmitVote(uuid.New(), players[1].ID, 0, 3), ErrPlayerNotFound)

	require.NoError(t, l.SubmitVote(players[0].ID, players[1].ID, 0, 4))

	events := drainEvents(conns[0])
	voted := lastEventOfType(events, "playerVoted")
	require.NotNil(t, voted)
	assert.Equal(t, 1, voted["count"])

	// Identical retry is harmless, a different score for the same ballot is not.
	require.NoError(t, l.SubmitVote(players[0].ID, players[1].ID, 0, 4))
	assert.ErrorIs(t, l.SubmitVote(players[0].ID, players[1].ID, 0, 2), ErrInvalidVote)

	events = drainEvents(conns[0])
	assert.Nil(t, lastEventOfType(events, "playerVoted"), "idempotent retry does not rebroadcast")
}

func TestLeaveTransfersOwnershipAndClampsTurn(t *testing.T) {
	l, players, conns := setupLobby(t, 3, defaultConfig())
	startGame(t, l, players[0])
	completeRound(t, l, players, 0)

	// Advance to the last listener so removals exercise the clamp.
	require.NoError(t, l.NextPlayer(players[0].ID))
	require.NoError(t, l.NextPlayer(players[0].ID))
	require.Equal(t, 2, l.CurrentPlayerIndex)
	drainEvents(conns[1])

	// Owner leaves: ownership moves to the next joiner and the seat before
	// the pointer disappears, shifting it down.
	require.NoError(t, l.Leave(players[0].ID))
	assert.Equal(t, players[1].ID, l.OwnerID)
	assert.Equal(t, 1, l.CurrentPlayerIndex)
	assert.Len(t, l.Players, 2)

	events := drainEvents(conns[1])
	left := lastEventOfType(events, "playerLeft")
	require.NotNil(t, left)
	assert.Equal(t, players[0], left["player"])
	assert.Equal(t, players[1].ID.String(), left["newOwnerId"])

	// Current player leaves while the pointer sits on the last seat: wrap to 0.
	require.NoError(t, l.Leave(players[2].ID))
	assert.Equal(t, 0, l.CurrentPlayerIndex)
}

func TestLeaveCompletesRecordingRound(t *testing.T) {
	l, players, _ := setupLobby(t, 3, defaultConfig())
	startGame(t, l, players[0])

	_, err := l.SubmitRecording(players[0].ID, 0, "https://cdn/a.m4a")
	require.NoError(t, err)
	_, err = l.SubmitRecording(players[1].ID, 0, "https://cdn/b.m4a")
	require.NoError(t, err)
	require.Equal(t, PhaseRecording, l.Phase)

	// The one player yet to record leaves; the smaller roster is complete.
	require.NoError(t, l.Leave(players[2].ID))
	assert.Equal(t, PhaseListening, l.Phase)
}

func TestLeaveLastPlayerFiresOnEmpty(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())

	var emptied []uuid.UUID
	l.OnEmpty = func(id uuid.UUID) { emptied = append(emptied, id) }

	require.NoError(t, l.Leave(players[0].ID))
	assert.Empty(t, emptied)

	events := drainEvents(conns[0])
	require.NotNil(t, lastEventOfType(events, "youLeft"))

	require.NoError(t, l.Leave(players[1].ID))
	require.Len(t, emptied, 1)
	assert.Equal(t, l.ID, emptied[0])

	assert.ErrorIs(t, l.Leave(players[1].ID), ErrPlayerNotFound)
}

func TestDisconnectGraceExpires(t *testing.T) {
	l, _, conns := setupLobby(t, 2, defaultConfig())
	l.Grace = 20 * time.Millisecond

	l.Disconnect(conns[1])
	l.Mu.Lock()
	assert.Len(t, l.Players, 2, "roster slot survives the grace window")
	l.Mu.Unlock()

	require.Eventually(t, func() bool {
		l.Mu.Lock()
		defer l.Mu.Unlock()
		return len(l.Players) == 1
	}, time.Second, 5*time.Millisecond, "grace expiry synthesizes a leave")
}

func TestReconnectWithinGraceResumes(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())
	l.Grace = 50 * time.Millisecond
	startGame(t, l, players[0])

	l.Disconnect(conns[1])

	fresh := newTestConn(players[1])
	require.NoError(t, l.Attach(fresh), "roster member can reattach mid-game")

	events := drainEvents(fresh)
	snapshot := lastEventOfType(events, "joinedLobby")
	require.NotNil(t, snapshot)
	assert.Equal(t, true, snapshot["hasGameStarted"])

	time.Sleep(100 * time.Millisecond)
	l.Mu.Lock()
	defer l.Mu.Unlock()
	assert.Len(t, l.Players, 2, "stale grace timer must not evict a resumed player")
}

func TestStaleTeardownAfterReconnectIsNoop(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())
	l.Grace = 20 * time.Millisecond

	// A second socket for the same player supersedes the first.
	fresh := newTestConn(players[1])
	require.NoError(t, l.Attach(fresh))

	// The old socket's handler tears down after the reconnect. It must not
	// close the new connection or arm a grace timer against the player.
	l.Disconnect(conns[1])

	l.Mu.Lock()
	assert.Same(t, fresh, l.Connections[players[1].ID], "newer connection keeps the slot")
	l.Mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	l.Mu.Lock()
	defer l.Mu.Unlock()
	assert.Len(t, l.Players, 2, "reconnected player must not be evicted")
	assert.Same(t, fresh, l.Connections[players[1].ID])
}

func TestFullGameScenario(t *testing.T) {
	l, players, conns := setupLobby(t, 3, Config{AIRate: true, HumanRate: true, TotalRounds: 2})
	owner := players[0]

	startGame(t, l, owner)
	for round := 0; round < 2; round++ {
		completeRound(t, l, players, round)
		for range players {
			require.NoError(t, l.NextPlayer(owner.ID))
		}
	}
	require.Equal(t, PhaseVoting, l.Phase)

	// Everyone rates everyone else in both rounds. Player B sweeps.
	for round := 0; round < 2; round++ {
		for _, voter := range players {
			for _, target := range players {
				if voter.ID == target.ID {
					continue
				}
				score := 3
				if target.ID == players[1].ID {
					score = 5
				}
				require.NoError(t, l.SubmitVote(voter.ID, target.ID, round, score))
			}
		}
	}

	require.ErrorIs(t, l.CalculateFinalScores(players[2].ID), ErrPermissionDenied)
	require.NoError(t, l.CalculateFinalScores(owner.ID))
	assert.Equal(t, PhaseFinished, l.Phase)

	events := drainEvents(conns[2])
	ready := lastEventOfType(events, "finalScoresReady")
	require.NotNil(t, ready)
	scores, ok := ready["scores"].([]models.FinalScore)
	require.True(t, ok)
	require.Len(t, scores, 3, "every roster member gets a final score")

	assert.Equal(t, players[1].ID, scores[0].UserID)
	assert.Equal(t, 20, scores[0].TotalScore, "two voters, five points, two rounds")
	assert.Equal(t, 12, scores[1].TotalScore)
	assert.Equal(t, 12, scores[2].TotalScore)

	won := lastEventOfType(events, "playerWon")
	require.NotNil(t, won)
	assert.Equal(t, scores[0], won["winner"])

	require.ErrorIs(t, l.CalculateFinalScores(owner.ID), ErrInvalidPhase)
}

func TestBroadcastSequenceIsMonotonic(t *testing.T) {
	l, players, conns := setupLobby(t, 2, defaultConfig())
	startGame(t, l, players[0])
	completeRound(t, l, players, 0)

	events := drainEvents(conns[1])
	require.NotEmpty(t, events)
	prev := 0
	for _, ev := range events {
		seq, ok := ev["seq"].(int)
		require.True(t, ok, "every broadcast carries a sequence number")
		assert.Greater(t, seq, prev)
		prev = seq
	}
}
