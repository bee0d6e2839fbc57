// Package room manages the living rooms of the server: the roster of
// players inside each room, the lobby/playing/finished lifecycle and
// the reconciliation of volatile connections onto stable players.
package room

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quizparty/quizparty/game"
	"github.com/quizparty/quizparty/protocol"
)

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Player is the stable identity inside a room. The connection id is
// the only volatile field: it changes on every reconnect while the
// player id, name and score survive.
type Player struct {
	ID       string
	Name     string
	Role     Role
	Status   Status
	ConnID   string
	Score    int
	JoinedAt time.Time
	LastSeen time.Time
}

type Room struct {
	code      string
	createdAt time.Time

	mu        sync.RWMutex
	phase     Phase
	hostID    string
	players   map[string]*Player // player id -> player
	session   *game.Session
	touchedAt time.Time
}

func newRoom(code string) *Room {
	now := time.Now()
	return &Room{
		code:      code,
		createdAt: now,
		phase:     PhaseLobby,
		players:   make(map[string]*Player),
		touchedAt: now,
	}
}

func (r *Room) Code() string { return r.code }

func (r *Room) CreatedAt() time.Time { return r.createdAt }

func (r *Room) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Session returns the running game, or nil outside the playing and
// finished phases.
func (r *Room) Session() *game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.session
}

func (r *Room) touchLocked() {
	r.touchedAt = time.Now()
}

// ActivePlayerIDs returns the connected, non-host players. This is the
// denominator of the "everyone has answered" check.
func (r *Room) ActivePlayerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, p := range r.players {
		if p.Role == RolePlayer && p.Status == StatusConnected {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// AddScore credits points to a player and returns the new total.
// Unknown players score into the void and return 0.
func (r *Room) AddScore(playerID string, points int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return 0
	}
	p.Score += points
	r.touchLocked()
	return p.Score
}

// Standings ranks the non-host players by score, best first. Ties keep
// join order and share a rank.
func (r *Room) Standings() []protocol.Standing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.standingsLocked()
}

func (r *Room) standingsLocked() []protocol.Standing {
	var ps []*Player
	for _, p := range r.players {
		if p.Role == RolePlayer {
			ps = append(ps, p)
		}
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Score != ps[j].Score {
			return ps[i].Score > ps[j].Score
		}
		return ps[i].JoinedAt.Before(ps[j].JoinedAt)
	})

	standings := make([]protocol.Standing, 0, len(ps))
	rank := 0
	prevScore := 0
	for i, p := range ps {
		if i == 0 || p.Score != prevScore {
			rank = i + 1
			prevScore = p.Score
		}
		standings = append(standings, protocol.Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
			Rank:     rank,
		})
	}
	return standings
}

// SetFinished moves the room to the finished phase once the results
// screen is up.
func (r *Room) SetFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseFinished
	r.touchLocked()
}

// DetachSession drops the session reference after its retention window
// expires. The room itself stays until the idle sweep collects it.
func (r *Room) DetachSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = nil
	r.touchLocked()
}

// PlayerInfos renders the roster for the players-updated broadcast.
func (r *Room) PlayerInfos() []protocol.PlayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playerInfosLocked()
}

func (r *Room) playerInfosLocked() []protocol.PlayerInfo {
	infos := make([]protocol.PlayerInfo, 0, len(r.players))
	for _, p := range r.players {
		infos = append(infos, protocol.PlayerInfo{
			ID:     p.ID,
			Name:   p.Name,
			Role:   string(p.Role),
			Status: string(p.Status),
			Score:  p.Score,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ConnIDs returns the connection ids of everyone currently connected,
// host included.
func (r *Room) ConnIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, p := range r.players {
		if p.Status == StatusConnected && p.ConnID != "" {
			ids = append(ids, p.ConnID)
		}
	}
	return ids
}

func (r *Room) connectedCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.Status == StatusConnected {
			n++
		}
	}
	return n
}

// Player looks up a roster entry by player id.
func (r *Room) Player(playerID string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.players[playerID]
	return p, ok
}

// reconcile maps a joining connection onto the roster. Matching is by
// case-insensitive name: a disconnected (or stale-connection) match is
// a reconnect that keeps its id and score, a match that is live on a
// different connection is a name conflict, and no match creates a new
// player. The bool reports whether this was a reconnect.
func (r *Room) reconcile(name string, role Role, connID string) (*Player, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if !strings.EqualFold(p.Name, name) {
			continue
		}
		if p.Status == StatusConnected && p.ConnID != "" && p.ConnID != connID {
			return nil, false, ErrNameTaken
		}
		p.ConnID = connID
		p.Status = StatusConnected
		p.LastSeen = time.Now()
		r.touchLocked()
		return p, true, nil
	}

	if role == RoleHost && r.hostID != "" {
		return nil, false, ErrHostTaken
	}

	now := time.Now()
	p := &Player{
		ID:       uuid.NewString(),
		Name:     name,
		Role:     role,
		Status:   StatusConnected,
		ConnID:   connID,
		JoinedAt: now,
		LastSeen: now,
	}
	r.players[p.ID] = p
	if role == RoleHost {
		r.hostID = p.ID
	}
	r.touchLocked()
	return p, false, nil
}

// restore re-attaches a known player id to a new connection.
func (r *Room) restore(playerID, connID string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	p.ConnID = connID
	p.Status = StatusConnected
	p.LastSeen = time.Now()
	r.touchLocked()
	return p, nil
}

// markDisconnected flips a player to disconnected if connID is still
// the one on record. A stale disconnect from an already-replaced
// connection is ignored.
func (r *Room) markDisconnected(playerID, connID string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok || p.ConnID != connID {
		return nil, false
	}
	p.ConnID = ""
	p.Status = StatusDisconnected
	p.LastSeen = time.Now()
	r.touchLocked()
	return p, true
}

// remove deletes a player outright. Reports whether the roster is now
// empty and whether the removed player was the host.
func (r *Room) remove(playerID string) (empty, wasHost bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[playerID]
	if !ok {
		return len(r.players) == 0, false
	}
	delete(r.players, playerID)
	if p.ID == r.hostID {
		r.hostID = ""
		wasHost = true
	}
	r.touchLocked()
	return len(r.players) == 0, wasHost
}

// idleSince reports how long the room has been without any connected
// participant. A room with someone connected is never idle.
func (r *Room) idleSince(now time.Time) (time.Duration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.connectedCountLocked() > 0 {
		return 0, false
	}
	return now.Sub(r.touchedAt), true
}
