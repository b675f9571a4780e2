// internal/lobby/registry.go
package lobby

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reverso-game/reverso/internal/models"
)

const codeLength = 6

// Registry owns every active lobby, keyed by id and by join code. Code
// allocation and the maps share one mutex, so no two active lobbies can ever
// hold the same code. Per-lobby state is guarded by each lobby's own lock;
// the registry's critical sections stay short.
type Registry struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*Lobby
	byCode map[string]uuid.UUID

	// Defaults applied to every created lobby.
	Store   Store
	Journal JournalFn
	Grace   time.Duration
}

// NewRegistry returns an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*Lobby),
		byCode: make(map[string]uuid.UUID),
	}
}

// generateCode produces a random 6-character join code.
func generateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("generating lobby code: %w", err)
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}

// CreateLobby builds a new lobby owned by the given player, with a join code
// guaranteed unique among active lobbies. Collisions are retried internally
// with a fresh code and never surfaced to the caller.
func (r *Registry) CreateLobby(owner models.Player, cfg Config) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for {
		c, err := generateCode()
		if err != nil {
			return nil, err
		}
		if _, taken := r.byCode[c]; !taken {
			code = c
			break
		}
		log.Printf("Registry: lobby code collision on %s, regenerating", c)
	}

	lb, err := New(owner, code, cfg)
	if err != nil {
		return nil, err
	}
	lb.Store = r.Store
	lb.Journal = r.Journal
	if r.Grace > 0 {
		lb.Grace = r.Grace
	}
	lb.OnEmpty = func(lobbyID uuid.UUID) {
		r.remove(lobbyID)
		r.purge(lobbyID)
	}

	r.byID[lb.ID] = lb
	r.byCode[code] = lb.ID
	log.Printf("Registry: created lobby %s (code %s) owned by %s", lb.ID, code, owner.ID)
	return lb, nil
}

// GetByCode looks up an active lobby by its join code.
func (r *Registry) GetByCode(code string) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return r.byID[id], nil
}

// GetByID looks up an active lobby by id.
func (r *Registry) GetByID(id uuid.UUID) (*Lobby, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lb, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return lb, nil
}

// DeleteLobby removes a lobby on the owner's request. Every subscriber gets
// a lobbyDeleted event and is then forcibly disconnected; persisted
// recordings and votes are purged.
func (r *Registry) DeleteLobby(id, requesterID uuid.UUID) error {
	lb, err := r.GetByID(id)
	if err != nil {
		return err
	}

	lb.Mu.Lock()
	if lb.OwnerID != requesterID {
		lb.Mu.Unlock()
		return ErrPermissionDenied
	}
	lb.broadcastUnsafe("lobbyDeleted", map[string]interface{}{})
	conns := make([]*Connection, 0, len(lb.Connections))
	for _, conn := range lb.Connections {
		conns = append(conns, conn)
	}
	lb.Connections = make(map[uuid.UUID]*Connection)
	for _, t := range lb.graceTimers {
		t.Stop()
	}
	lb.graceTimers = make(map[uuid.UUID]*time.Timer)
	lb.Players = nil
	lb.Mu.Unlock()

	for _, conn := range conns {
		closeConnection(conn)
	}

	r.remove(id)
	r.purge(id)
	log.Printf("Registry: lobby %s deleted by owner %s", id, requesterID)
	return nil
}

// Lobbies returns a snapshot of all active lobbies, mainly for debugging.
func (r *Registry) Lobbies() []*Lobby {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Lobby, 0, len(r.byID))
	for _, lb := range r.byID {
		out = append(out, lb)
	}
	return out
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lb, ok := r.byID[id]; ok {
		delete(r.byCode, lb.Code)
		delete(r.byID, id)
	}
}

func (r *Registry) purge(id uuid.UUID) {
	if r.Store == nil {
		return
	}
	store := r.Store
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.PurgeLobby(ctx, id); err != nil {
			log.Printf("Registry: failed to purge persisted data for lobby %s: %v", id, err)
		}
	}()
}
