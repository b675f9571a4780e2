// internal/lobby/lobby.go
package lobby

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/models"
	"github.com/reverso-game/reverso/internal/scoring"
)

// Phase is the coarse game-state stage of a lobby.
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseRecording Phase = "recording"
	PhaseListening Phase = "listening"
	PhaseVoting    Phase = "voting"
	PhaseFinished  Phase = "finished"
)

const (
	// DefaultMaxPlayers is the roster capacity when the creator does not pick one.
	DefaultMaxPlayers = 4

	// MinRounds and MaxRounds bound totalRounds at creation.
	MinRounds = 1
	MaxRounds = 3

	// DefaultDisconnectGrace is how long an abruptly dropped connection may
	// reconnect before the player is treated as having left.
	DefaultDisconnectGrace = 5 * time.Second
)

// Config carries the creator-chosen settings for a new lobby.
type Config struct {
	IsPrivate   bool `json:"private"`
	AIRate      bool `json:"aiRate"`
	HumanRate   bool `json:"humanRate"`
	TotalRounds int  `json:"totalRounds"`
	MaxPlayers  int  `json:"maxPlayers"`
}

type voteKey struct {
	voter  uuid.UUID
	target uuid.UUID
	round  int
}

// Lobby is the authoritative state of one game session. Every mutation goes
// through methods that hold Mu, so all state-changing operations on a single
// lobby are totally ordered. Broadcast sends are non-blocking channel pushes
// performed under the lock; the per-lobby sequence number they carry is
// assigned at that point, which is what gives subscribers an ordered stream.
type Lobby struct {
	ID      uuid.UUID `json:"id"`
	Code    string    `json:"lobbyCode"`
	OwnerID uuid.UUID `json:"ownerId"`

	IsPrivate   bool `json:"isPrivate"`
	MaxPlayers  int  `json:"maxPlayers"`
	AIRate      bool `json:"aiRate"`
	HumanRate   bool `json:"humanRate"`
	TotalRounds int  `json:"totalRounds"`

	Phase              Phase `json:"phase"`
	HasGameStarted     bool  `json:"hasGameStarted"`
	CurrentRound       int   `json:"currentRound"`
	CurrentPlayerIndex int   `json:"currentPlayerIndex"`

	// Players preserves join order; it is also the turn order.
	Players []models.Player `json:"players"`
	Tracks  []models.Track  `json:"-"`

	recordings map[int]map[uuid.UUID]*models.Recording
	votes      map[voteKey]int

	Connections map[uuid.UUID]*Connection `json:"-"`
	graceTimers map[uuid.UUID]*time.Timer

	// Grace is the reconnect window after an abrupt disconnect.
	Grace time.Duration `json:"-"`

	seq int

	// OnEmpty is called after the last player leaves, typically assigned by
	// the Registry to remove the lobby from its maps.
	OnEmpty func(lobbyID uuid.UUID) `json:"-"`

	// Journal, when set, receives a copy of every broadcast event.
	Journal JournalFn `json:"-"`

	// Store, when set, receives write-through copies of recordings and votes.
	Store Store `json:"-"`

	Mu sync.Mutex `json:"-"`
}

// New builds a lobby in the Waiting phase with the creator as sole roster
// member and owner. Returns ErrValidation for unusable configs.
func New(owner models.Player, code string, cfg Config) (*Lobby, error) {
	if !cfg.AIRate && !cfg.HumanRate {
		return nil, ErrValidation
	}
	if cfg.TotalRounds < MinRounds || cfg.TotalRounds > MaxRounds {
		return nil, ErrValidation
	}
	if cfg.MaxPlayers == 0 {
		cfg.MaxPlayers = DefaultMaxPlayers
	}
	if cfg.MaxPlayers < 2 {
		return nil, ErrValidation
	}

	id, _ := uuid.NewRandom()
	return &Lobby{
		ID:          id,
		Code:        code,
		OwnerID:     owner.ID,
		IsPrivate:   cfg.IsPrivate,
		MaxPlayers:  cfg.MaxPlayers,
		AIRate:      cfg.AIRate,
		HumanRate:   cfg.HumanRate,
		TotalRounds: cfg.TotalRounds,
		Phase:       PhaseWaiting,
		Players:     []models.Player{owner},
		recordings:  make(map[int]map[uuid.UUID]*models.Recording),
		votes:       make(map[voteKey]int),
		Connections: make(map[uuid.UUID]*Connection),
		graceTimers: make(map[uuid.UUID]*time.Timer),
		Grace:       DefaultDisconnectGrace,
	}, nil
}

// Attach registers a live connection for a player. A roster member
// reconnecting resumes their original slot (superseding any prior
// connection); anyone else is a new join, which is only allowed while the
// lobby is Waiting and has room. The joiner always receives a joinedLobby
// snapshot; a genuinely new join is broadcast as playerJoined.
func (l *Lobby) Attach(conn *Connection) error {
	l.Mu.Lock()

	if l.indexOfUnsafe(conn.UserID) >= 0 {
		// Resume-in-place: cancel any pending grace timer and supersede the
		// old connection if one is still registered.
		if t, ok := l.graceTimers[conn.UserID]; ok {
			t.Stop()
			delete(l.graceTimers, conn.UserID)
		}
		if old, ok := l.Connections[conn.UserID]; ok && old != conn {
			closeConnection(old)
		}
		conn.IsOwner = l.OwnerID == conn.UserID
		l.Connections[conn.UserID] = conn
		snapshot := l.statePayloadUnsafe("joinedLobby")
		l.Mu.Unlock()

		conn.Write(snapshot)
		return nil
	}

	if l.HasGameStarted {
		l.Mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(l.Players) >= l.MaxPlayers {
		l.Mu.Unlock()
		return ErrLobbyFull
	}

	l.Players = append(l.Players, conn.Player)
	conn.IsOwner = l.OwnerID == conn.UserID
	l.Connections[conn.UserID] = conn

	l.broadcastUnsafe("playerJoined", map[string]interface{}{
		"player": conn.Player,
	})
	snapshot := l.statePayloadUnsafe("joinedLobby")
	l.Mu.Unlock()

	conn.Write(snapshot)
	return nil
}

// Disconnect handles an abrupt socket drop without an explicit leave. The
// dropped connection is passed so that a handler tearing down after its
// player already reconnected does not disturb the newer connection. The
// player keeps their roster slot for the grace window; if they do not
// reconnect in time, a leave is synthesized on their behalf.
func (l *Lobby) Disconnect(conn *Connection) {
	userID := conn.UserID

	l.Mu.Lock()
	if l.Connections[userID] != conn {
		// This connection was superseded by a reconnect; the newer
		// connection owns the roster slot now.
		l.Mu.Unlock()
		return
	}
	delete(l.Connections, userID)
	closeConnection(conn)

	grace := l.Grace
	if grace <= 0 {
		grace = DefaultDisconnectGrace
	}

	var timer *time.Timer
	timer = time.AfterFunc(grace, func() {
		l.Mu.Lock()
		if l.graceTimers[userID] != timer {
			// Player reconnected (or already left); this timer is stale.
			l.Mu.Unlock()
			return
		}
		delete(l.graceTimers, userID)
		l.Mu.Unlock()

		log.Printf("Lobby %s: grace period expired for player %s, leaving on their behalf", l.Code, userID)
		if err := l.Leave(userID); err != nil {
			log.Printf("Lobby %s: synthesized leave for %s failed: %v", l.Code, userID, err)
		}
	})
	l.graceTimers[userID] = timer
	l.Mu.Unlock()
}

// Leave removes a player from the roster in any phase. Ownership transfers
// to the earliest remaining joiner, the turn pointer is clamped so it never
// points past the roster end, and round completion is re-evaluated against
// the smaller roster. The last player leaving triggers OnEmpty.
func (l *Lobby) Leave(userID uuid.UUID) error {
	l.Mu.Lock()

	idx := l.indexOfUnsafe(userID)
	if idx < 0 {
		l.Mu.Unlock()
		return ErrPlayerNotFound
	}
	departed := l.Players[idx]

	if t, ok := l.graceTimers[userID]; ok {
		t.Stop()
		delete(l.graceTimers, userID)
	}
	conn := l.Connections[userID]
	delete(l.Connections, userID)

	l.Players = append(l.Players[:idx], l.Players[idx+1:]...)

	newOwnerID := uuid.Nil
	if len(l.Players) > 0 {
		if l.OwnerID == userID {
			l.OwnerID = l.Players[0].ID
			if oc, ok := l.Connections[l.OwnerID]; ok {
				oc.IsOwner = true
			}
		}
		newOwnerID = l.OwnerID
	}

	// Keep the turn pointer on the same logical player where possible and
	// never past the roster end. Removing a seat before the pointer shifts
	// everyone after it down by one; removing the current player leaves the
	// pointer on the next player, wrapping at the end of the roster.
	if l.HasGameStarted && len(l.Players) > 0 {
		if idx < l.CurrentPlayerIndex {
			l.CurrentPlayerIndex--
		}
		if l.CurrentPlayerIndex >= len(l.Players) {
			l.CurrentPlayerIndex = 0
		}
		if l.CurrentPlayerIndex < 0 {
			l.CurrentPlayerIndex = 0
		}
	}

	// A smaller roster may already satisfy the round-completion condition.
	phaseChanged := false
	if l.Phase == PhaseRecording && len(l.Players) > 0 && l.roundCompleteUnsafe(l.CurrentRound) {
		l.Phase = PhaseListening
		l.CurrentPlayerIndex = 0
		phaseChanged = true
	}

	l.broadcastUnsafe("playerLeft", map[string]interface{}{
		"player":     departed,
		"newOwnerId": uuidOrNil(newOwnerID),
	})
	if l.HasGameStarted && (phaseChanged || len(l.Players) > 0) {
		l.broadcastUnsafe("lobbyUpdated", l.statePayloadUnsafe("lobbyUpdated"))
	}

	isEmpty := len(l.Players) == 0
	onEmpty := l.OnEmpty
	l.Mu.Unlock()

	if conn != nil {
		conn.Write(map[string]interface{}{"type": "youLeft"})
		closeConnection(conn)
	}

	if isEmpty && onEmpty != nil {
		log.Printf("Lobby %s is now empty, removing", l.Code)
		onEmpty(l.ID)
	}
	return nil
}

// EnsureCanStart performs the StartGame permission and phase checks without
// mutating anything. The transport layer calls it before asking the external
// track source for songs, so a rejected caller never triggers that call.
func (l *Lobby) EnsureCanStart(requesterID uuid.UUID) error {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.canStartUnsafe(requesterID)
}

func (l *Lobby) canStartUnsafe(requesterID uuid.UUID) error {
	if l.OwnerID != requesterID {
		return ErrPermissionDenied
	}
	if l.HasGameStarted || l.Phase != PhaseWaiting {
		return ErrAlreadyStarted
	}
	if len(l.Players) < 2 {
		return ErrNotEnoughPlayers
	}
	return nil
}

// StartGame moves the lobby from Waiting to Recording for round 0. Owner
// only, two-player minimum. tracks must hold one song per round, selected by
// the caller before the lock is taken.
func (l *Lobby) StartGame(requesterID uuid.UUID, tracks []models.Track) error {
	l.Mu.Lock()

	if err := l.canStartUnsafe(requesterID); err != nil {
		l.Mu.Unlock()
		return err
	}

	l.HasGameStarted = true
	l.Phase = PhaseRecording
	l.CurrentRound = 0
	l.CurrentPlayerIndex = 0
	l.Tracks = tracks

	l.broadcastUnsafe("gameStarted", map[string]interface{}{
		"lobbyId": l.ID.String(),
		"tracks":  tracks,
	})
	l.broadcastUnsafe("lobbyUpdated", l.statePayloadUnsafe("lobbyUpdated"))
	l.Mu.Unlock()
	return nil
}

// SubmitRecording stores a player's clip reference for the current round.
// Re-submission for the same (player, round) is an idempotent overwrite.
// Once every roster member has a recording for the round the lobby
// auto-transitions to Listening with the turn pointer reset.
func (l *Lobby) SubmitRecording(userID uuid.UUID, round int, url string) (models.Recording, error) {
	l.Mu.Lock()

	if l.indexOfUnsafe(userID) < 0 {
		l.Mu.Unlock()
		return models.Recording{}, ErrPlayerNotFound
	}
	if l.Phase != PhaseRecording || round != l.CurrentRound {
		l.Mu.Unlock()
		return models.Recording{}, ErrInvalidPhase
	}

	rec := models.Recording{LobbyID: l.ID, UserID: userID, Round: round, URL: url}
	if l.recordings[round] == nil {
		l.recordings[round] = make(map[uuid.UUID]*models.Recording)
	}
	l.recordings[round][userID] = &rec

	if l.roundCompleteUnsafe(round) {
		l.Phase = PhaseListening
		l.CurrentPlayerIndex = 0
	}
	l.broadcastUnsafe("lobbyUpdated", l.statePayloadUnsafe("lobbyUpdated"))

	store := l.Store
	l.Mu.Unlock()

	if store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.SaveRecording(ctx, rec); err != nil {
				log.Printf("Lobby %s: failed to persist recording for %s round %d: %v", l.Code, userID, round, err)
			}
		}()
	}
	return rec, nil
}

// SetAIScore attaches the external scorer's result to an already submitted
// recording. Scorer failures are absorbed upstream; this is only called
// with a real score.
func (l *Lobby) SetAIScore(userID uuid.UUID, round int, score float64) error {
	l.Mu.Lock()

	rec := l.recordings[round][userID]
	if rec == nil {
		l.Mu.Unlock()
		return ErrPlayerNotFound
	}
	rec.AIScore = &score
	l.broadcastUnsafe("lobbyUpdated", l.statePayloadUnsafe("lobbyUpdated"))

	store := l.Store
	l.Mu.Unlock()

	if store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.SetAIScore(ctx, l.ID, userID, round, score); err != nil {
				log.Printf("Lobby %s: failed to persist AI score for %s round %d: %v", l.Code, userID, round, err)
			}
		}()
	}
	return nil
}

// NextPlayer advances the turn pointer during Listening. Owner only. At the
// end of the roster it either starts the next round's Recording phase or,
// after the final round, moves to Voting (straight to score finalization
// when only AI rating is enabled).
func (l *Lobby) NextPlayer(requesterID uuid.UUID) error {
	l.Mu.Lock()

	if l.OwnerID != requesterID {
		l.Mu.Unlock()
		return ErrPermissionDenied
	}
	if l.Phase != PhaseListening {
		l.Mu.Unlock()
		return ErrInvalidPhase
	}

	if l.CurrentPlayerIndex < len(l.Players)-1 {
		l.CurrentPlayerIndex++
		payload := l.statePayloadUnsafe("currentPlayerChanged")
		payload["playerId"] = l.Players[l.CurrentPlayerIndex].ID.String()
		l.broadcastUnsafe("currentPlayerChanged", payload)
		l.Mu.Unlock()
		return nil
	}

	if l.CurrentRound < l.TotalRounds-1 {
		l.CurrentRound++
		l.CurrentPlayerIndex = 0
		l.Phase = PhaseRecording
		l.broadcastUnsafe("lobbyUpdated", l.statePayloadUnsafe("lobbyUpdated"))
		l.Mu.Unlock()
		return nil
	}

	if l.HumanRate {
		l.Phase = PhaseVoting
		l.broadcastUnsafe("lobbyUpdated", l.statePayloadUnsafe("lobbyUpdated"))
		l.Mu.Unlock()
		return nil
	}

	// AI-only lobbies never collect votes; finalize immediately.
	l.finalizeScoresUnsafe()
	l.Mu.Unlock()
	return nil
}

// SubmitVote records one player's rating of another's recording. Self-votes
// and out-of-range scores are rejected; an identical duplicate is a no-op so
// client retries are harmless, while a conflicting duplicate is an error.
// Only the running vote count is broadcast, never the ballot itself.
func (l *Lobby) SubmitVote(voterID, targetID uuid.UUID, round, score int) error {
	l.Mu.Lock()

	if !l.HumanRate {
		l.Mu.Unlock()
		return ErrInvalidVote
	}
	if !l.HasGameStarted || l.Phase == PhaseWaiting || l.Phase == PhaseFinished {
		l.Mu.Unlock()
		return ErrInvalidPhase
	}
	if l.indexOfUnsafe(voterID) < 0 {
		l.Mu.Unlock()
		return ErrPlayerNotFound
	}
	if voterID == targetID {
		l.Mu.Unlock()
		return ErrInvalidVote
	}
	if score < models.VoteScoreMin || score > models.VoteScoreMax {
		l.Mu.Unlock()
		return ErrInvalidVote
	}
	if round < 0 || round > l.CurrentRound {
		l.Mu.Unlock()
		return ErrInvalidPhase
	}

	key := voteKey{voter: voterID, target: targetID, round: round}
	if prev, ok := l.votes[key]; ok {
		l.Mu.Unlock()
		if prev == score {
			return nil
		}
		return ErrInvalidVote
	}
	l.votes[key] = score

	count := 0
	for k := range l.votes {
		if k.round == round {
			count++
		}
	}
	l.broadcastUnsafe("playerVoted", map[string]interface{}{
		"round": round,
		"count": count,
	})

	store := l.Store
	v := models.Vote{LobbyID: l.ID, VoterID: voterID, TargetUserID: targetID, Round: round, Score: score}
	l.Mu.Unlock()

	if store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.SaveVote(ctx, v); err != nil {
				log.Printf("Lobby %s: failed to persist vote from %s: %v", l.Code, voterID, err)
			}
		}()
	}
	return nil
}

// NotifyVoted announces that a player has finished their ballot. Purely a
// presence signal for the other clients; the votes themselves arrive over
// the REST endpoint.
func (l *Lobby) NotifyVoted(userID uuid.UUID) error {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	if l.indexOfUnsafe(userID) < 0 {
		return ErrPlayerNotFound
	}
	if l.Phase != PhaseVoting {
		return ErrInvalidPhase
	}
	l.broadcastUnsafe("playerVoted", map[string]interface{}{
		"playerId": userID.String(),
	})
	return nil
}

// CalculateFinalScores aggregates votes and AI scores, moves the lobby to
// Finished and broadcasts the ranked results. Owner only; valid from Voting.
func (l *Lobby) CalculateFinalScores(requesterID uuid.UUID) error {
	l.Mu.Lock()

	if l.OwnerID != requesterID {
		l.Mu.Unlock()
		return ErrPermissionDenied
	}
	if l.Phase != PhaseVoting {
		l.Mu.Unlock()
		return ErrInvalidPhase
	}
	l.finalizeScoresUnsafe()
	l.Mu.Unlock()
	return nil
}

// FinalScores returns the current ranking without mutating lobby state.
func (l *Lobby) FinalScores() []models.FinalScore {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return scoring.FinalScores(l.Players, l.votesUnsafe(), l.recordingsUnsafe(), l.HumanRate)
}

// finalizeScoresUnsafe computes the ranking, marks the lobby Finished and
// broadcasts finalScoresReady followed by playerWon. Assumes lock is held.
func (l *Lobby) finalizeScoresUnsafe() {
	scores := scoring.FinalScores(l.Players, l.votesUnsafe(), l.recordingsUnsafe(), l.HumanRate)
	l.Phase = PhaseFinished

	l.broadcastUnsafe("finalScoresReady", map[string]interface{}{
		"scores": scores,
	})
	if len(scores) > 0 {
		l.broadcastUnsafe("playerWon", map[string]interface{}{
			"winner": scores[0],
		})
	}
}

// Recordings returns the stored recordings in roster order per round.
func (l *Lobby) Recordings() []models.Recording {
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.recordingsUnsafe()
}

// --- internal helpers, all assume the lock is held ---

func (l *Lobby) indexOfUnsafe(userID uuid.UUID) int {
	for i, p := range l.Players {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

// roundCompleteUnsafe reports whether every current roster member has a
// recording for the round. Recordings from departed players do not count.
func (l *Lobby) roundCompleteUnsafe(round int) bool {
	recs := l.recordings[round]
	if recs == nil {
		return false
	}
	for _, p := range l.Players {
		if recs[p.ID] == nil {
			return false
		}
	}
	return true
}

func (l *Lobby) votesUnsafe() []models.Vote {
	out := make([]models.Vote, 0, len(l.votes))
	for k, score := range l.votes {
		out = append(out, models.Vote{
			LobbyID:      l.ID,
			VoterID:      k.voter,
			TargetUserID: k.target,
			Round:        k.round,
			Score:        score,
		})
	}
	return out
}

func (l *Lobby) recordingsUnsafe() []models.Recording {
	var out []models.Recording
	for round := 0; round < l.TotalRounds; round++ {
		byUser := l.recordings[round]
		if byUser == nil {
			continue
		}
		for _, p := range l.Players {
			if rec := byUser[p.ID]; rec != nil {
				out = append(out, *rec)
			}
		}
	}
	return out
}

// statePayloadUnsafe builds the full lobby snapshot broadcast as
// lobbyUpdated and sent privately as joinedLobby. recordingsByRound is
// aligned to roster order so clients can index it with currentPlayerIndex.
func (l *Lobby) statePayloadUnsafe(event string) map[string]interface{} {
	var recordingsByRound [][]*models.Recording
	if l.HasGameStarted {
		recordingsByRound = make([][]*models.Recording, l.CurrentRound+1)
		for round := 0; round <= l.CurrentRound; round++ {
			row := make([]*models.Recording, len(l.Players))
			for i, p := range l.Players {
				if byUser := l.recordings[round]; byUser != nil {
					if rec := byUser[p.ID]; rec != nil {
						cp := *rec
						row[i] = &cp
					}
				}
			}
			recordingsByRound[round] = row
		}
	} else {
		recordingsByRound = [][]*models.Recording{}
	}

	players := make([]models.Player, len(l.Players))
	copy(players, l.Players)

	return map[string]interface{}{
		"type":               event,
		"id":                 l.ID.String(),
		"lobbyCode":          l.Code,
		"ownerId":            l.OwnerID.String(),
		"isPrivate":          l.IsPrivate,
		"maxPlayers":         l.MaxPlayers,
		"aiRate":             l.AIRate,
		"humanRate":          l.HumanRate,
		"totalRounds":        l.TotalRounds,
		"currentRound":       l.CurrentRound,
		"currentPlayerIndex": l.CurrentPlayerIndex,
		"hasGameStarted":     l.HasGameStarted,
		"phase":              string(l.Phase),
		"players":            players,
		"recordingsByRound":  recordingsByRound,
	}
}

// broadcastUnsafe stamps the payload with the next per-lobby sequence number
// and pushes it to every subscribed connection. Writes are non-blocking, so
// a slow subscriber drops events instead of stalling the lobby. The journal
// copy is published off the lock path.
func (l *Lobby) broadcastUnsafe(event string, payload map[string]interface{}) {
	payload["type"] = event
	l.seq++
	payload["seq"] = l.seq

	for _, conn := range l.Connections {
		conn.Write(payload)
	}

	if l.Journal != nil {
		journal := l.Journal
		lobbyID := l.ID
		seq := l.seq
		go journal(lobbyID, seq, event, payload)
	}
}

// closeConnection tears down a connection's channel and goroutines. Safe to
// call for already-closed connections.
func closeConnection(conn *Connection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Connection %s: recovered closing OutChan: %v", conn.UserID, r)
		}
	}()
	close(conn.OutChan)
	if conn.Cancel != nil {
		conn.Cancel()
	}
}

func uuidOrNil(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}
