package room

import (
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand"
	"sort"
	"sync"
	"time"

	"github.com/quizparty/quizparty/game"
	"github.com/quizparty/quizparty/identity"
	"github.com/quizparty/quizparty/logger"
	"github.com/quizparty/quizparty/monitor"
	"github.com/quizparty/quizparty/protocol"
	"github.com/quizparty/quizparty/question"
	"github.com/quizparty/quizparty/timer"
)

var (
	ErrRoomNotFound   = errors.New("room: not found")
	ErrNameTaken      = errors.New("room: name already in use by a connected player")
	ErrHostTaken      = errors.New("room: already has a host")
	ErrNotHost        = errors.New("room: only the host may do that")
	ErrAlreadyStarted = errors.New("room: game already started")
	ErrPlayerNotFound = errors.New("room: player not found")
	ErrNotBound       = errors.New("room: connection is not in a room")
	ErrCodesExhausted = errors.New("room: could not allocate a room code")
)

const (
	codeLetters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits   = "0123456789"
	codeAttempts = 100
)

// Registry owns every room on the server. It is the entry point for
// all connection-facing operations; rooms are never handed out for
// direct mutation.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	ids     *identity.Manager
	bc      Broadcaster
	timers  *timer.Manager
	gameCfg game.Config
	bank    []question.Question

	sweepID int64
}

func NewRegistry(ids *identity.Manager, timers *timer.Manager, gameCfg game.Config, bank []question.Question) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		ids:     ids,
		timers:  timers,
		gameCfg: gameCfg,
		bank:    bank,
	}
}

// LookupBinding resolves a connection id to the room and player it is
// bound to.
func (g *Registry) LookupBinding(connID string) (identity.Binding, bool) {
	return g.ids.Lookup(connID)
}

// SetBroadcaster wires the outbound side in after construction; the
// broadcaster needs the registry to resolve room membership, so it
// cannot exist first.
func (g *Registry) SetBroadcaster(bc Broadcaster) {
	g.bc = bc
}

// CreateRoom makes a room with the caller as its host and returns the
// room and the host's player record.
func (g *Registry) CreateRoom(connID, hostName string) (*Room, *Player, error) {
	code, err := g.allocateCode()
	if err != nil {
		return nil, nil, err
	}

	rm := newRoom(code)
	host, _, err := rm.reconcile(hostName, RoleHost, connID)
	if err != nil {
		return nil, nil, err
	}

	g.mu.Lock()
	g.rooms[code] = rm
	g.mu.Unlock()

	g.ids.Bind(connID, code, host.ID)
	monitor.ActiveRooms.Inc()
	monitor.ConnectedPlayers.Set(float64(g.ids.Len()))
	logger.Log.Infow("Room created", "room", code, "host", hostName)
	return rm, host, nil
}

// allocateCode picks an unused code of the form ABC-123.
func (g *Registry) allocateCode() (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		g.mu.RLock()
		_, taken := g.rooms[code]
		g.mu.RUnlock()
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodesExhausted
}

func randomCode() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("room code entropy: %w", err)
	}
	code := []byte{
		codeLetters[int(b[0])%len(codeLetters)],
		codeLetters[int(b[1])%len(codeLetters)],
		codeLetters[int(b[2])%len(codeLetters)],
		'-',
		codeDigits[int(b[3])%len(codeDigits)],
		codeDigits[int(b[4])%len(codeDigits)],
		codeDigits[int(b[5])%len(codeDigits)],
	}
	return string(code), nil
}

// Get resolves a room code, case-insensitively on the letter part.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rm, ok := g.rooms[normalizeCode(code)]
	return rm, ok
}

func normalizeCode(code string) string {
	up := make([]byte, len(code))
	for i := 0; i < len(code); i++ {
		c := code[i]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		up[i] = c
	}
	return string(up)
}

// Join puts a connection into a room under the given display name,
// reconciling against the existing roster. The returned bool reports
// whether the join was a reconnect of a known player.
func (g *Registry) Join(connID, code, name string, role Role) (*Room, *Player, bool, error) {
	rm, ok := g.Get(code)
	if !ok {
		return nil, nil, false, ErrRoomNotFound
	}

	// A connection already bound to a player in this room is that
	// player re-announcing itself; prefer that over name matching.
	if b, ok := g.ids.Lookup(connID); ok && b.RoomCode == rm.Code() {
		if p, err := rm.restore(b.PlayerID, connID); err == nil {
			g.broadcastRoster(rm)
			return rm, p, true, nil
		}
	}

	p, reconnected, err := rm.reconcile(name, role, connID)
	if err != nil {
		return nil, nil, false, err
	}

	g.ids.Bind(connID, rm.Code(), p.ID)
	monitor.ConnectedPlayers.Set(float64(g.ids.Len()))
	g.broadcastRoster(rm)
	logger.Log.Infow("Player joined", "room", rm.Code(), "player", name, "reconnect", reconnected)
	return rm, p, reconnected, nil
}

// Restore re-attaches a connection to a player it already owned, used
// by clients that kept their player id across a reconnect.
func (g *Registry) Restore(newConnID, code, playerID, oldConnID string) (*Room, *Player, error) {
	rm, ok := g.Get(code)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	p, err := rm.restore(playerID, newConnID)
	if err != nil {
		return nil, nil, err
	}

	if oldConnID != "" {
		g.ids.Unbind(oldConnID)
	}
	g.ids.Bind(newConnID, rm.Code(), p.ID)
	monitor.ConnectedPlayers.Set(float64(g.ids.Len()))
	g.broadcastRoster(rm)
	logger.Log.Infow("Session restored", "room", rm.Code(), "player", p.Name)
	return rm, p, nil
}

// MarkDisconnected records that a connection went away. The player
// stays on the roster as disconnected so a later join under the same
// name picks the record back up.
func (g *Registry) MarkDisconnected(connID string) {
	b, ok := g.ids.Unbind(connID)
	if !ok {
		return
	}
	monitor.ConnectedPlayers.Set(float64(g.ids.Len()))

	rm, ok := g.Get(b.RoomCode)
	if !ok {
		return
	}
	p, changed := rm.markDisconnected(b.PlayerID, connID)
	if !changed {
		return
	}
	g.broadcastRoster(rm)
	logger.Log.Infow("Player disconnected", "room", rm.Code(), "player", p.Name)

	// The departed player may have been the last one still answering.
	if s := rm.Session(); s != nil {
		s.OnPlayerDisconnected()
	}
}

// Leave removes the player behind a connection from their room. A
// leaving host, or the last player out, takes the room with them.
func (g *Registry) Leave(connID string) {
	b, ok := g.ids.Unbind(connID)
	if !ok {
		return
	}
	monitor.ConnectedPlayers.Set(float64(g.ids.Len()))

	rm, ok := g.Get(b.RoomCode)
	if !ok {
		return
	}
	empty, wasHost := rm.remove(b.PlayerID)
	if empty || wasHost {
		g.DeleteRoom(rm.Code())
		return
	}
	g.broadcastRoster(rm)
	if s := rm.Session(); s != nil {
		s.OnPlayerDisconnected()
	}
}

// StartGame launches the quiz in the caller's room. Only the host may
// start, and only from the lobby.
func (g *Registry) StartGame(connID string) (*Room, *game.Session, error) {
	b, ok := g.ids.Lookup(connID)
	if !ok {
		return nil, nil, ErrNotBound
	}
	rm, ok := g.Get(b.RoomCode)
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	p, ok := rm.Player(b.PlayerID)
	if !ok {
		return nil, nil, ErrPlayerNotFound
	}
	if p.Role != RoleHost {
		return nil, nil, ErrNotHost
	}

	s, err := game.NewSession(g.gameCfg, rm, g.bc, g.freshQuestions())
	if err != nil {
		return nil, nil, err
	}
	if err := rm.startSession(s); err != nil {
		return nil, nil, err
	}

	g.bc.ToRoom(rm.Code(), protocol.Message{
		Type: protocol.EvtGameStarted,
		Data: protocol.GameStartedData{TotalQuestions: s.TotalQuestions()},
	})
	s.Start()
	logger.Log.Infow("Game started", "room", rm.Code(), "questions", s.TotalQuestions())
	return rm, s, nil
}

// freshQuestions deals a new question order for one game. Option order
// was already shuffled at load time.
func (g *Registry) freshQuestions() []question.Question {
	qs := make([]question.Question, len(g.bank))
	copy(qs, g.bank)
	mrand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	return qs
}

func (r *Room) startSession(s *game.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != PhaseLobby {
		return ErrAlreadyStarted
	}
	r.phase = PhasePlaying
	r.session = s
	r.touchLocked()
	return nil
}

// DeleteRoom tears a room down: its session, its identity bindings and
// the registry entry.
func (g *Registry) DeleteRoom(code string) {
	code = normalizeCode(code)
	g.mu.Lock()
	rm, ok := g.rooms[code]
	if ok {
		delete(g.rooms, code)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	conns := rm.ConnIDs()
	if s := rm.Session(); s != nil {
		s.Close()
	}
	for _, c := range conns {
		g.ids.Unbind(c)
	}
	monitor.ActiveRooms.Dec()
	monitor.ConnectedPlayers.Set(float64(g.ids.Len()))
	logger.Log.Infow("Room deleted", "room", code)
}

// SweepIdle deletes rooms that have had no connected participant for
// longer than maxIdle.
func (g *Registry) SweepIdle(maxIdle time.Duration) int {
	now := time.Now()

	g.mu.RLock()
	var stale []string
	for code, rm := range g.rooms {
		if idle, ok := rm.idleSince(now); ok && idle > maxIdle {
			stale = append(stale, code)
		}
	}
	g.mu.RUnlock()

	for _, code := range stale {
		logger.Log.Infow("Sweeping idle room", "room", code)
		g.DeleteRoom(code)
	}
	return len(stale)
}

// StartSweeper runs SweepIdle on a fixed interval until Shutdown.
func (g *Registry) StartSweeper(interval, maxIdle time.Duration) {
	g.sweepID = g.timers.Schedule(interval, interval, func() {
		g.SweepIdle(maxIdle)
	})
}

// Shutdown stops the sweeper and deletes every room.
func (g *Registry) Shutdown() {
	if g.sweepID != 0 {
		g.timers.Cancel(g.sweepID)
	}
	g.mu.RLock()
	codes := make([]string, 0, len(g.rooms))
	for code := range g.rooms {
		codes = append(codes, code)
	}
	g.mu.RUnlock()
	for _, code := range codes {
		g.DeleteRoom(code)
	}
}

func (g *Registry) broadcastRoster(rm *Room) {
	g.bc.ToRoom(rm.Code(), protocol.Message{
		Type: protocol.EvtPlayersUpdated,
		Data: protocol.PlayersUpdatedData{Players: rm.PlayerInfos()},
	})
}

// Summary is the administrative view of one room.
type Summary struct {
	Code      string
	Phase     string
	Screen    string
	Players   int
	Connected int
	CreatedAt time.Time
}

// Summaries lists every room for the admin interface.
func (g *Registry) Summaries() []Summary {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.RUnlock()

	out := make([]Summary, 0, len(rooms))
	for _, rm := range rooms {
		rm.mu.RLock()
		s := Summary{
			Code:      rm.code,
			Phase:     string(rm.phase),
			Players:   len(rm.players),
			Connected: rm.connectedCountLocked(),
			CreatedAt: rm.createdAt,
		}
		sess := rm.session
		rm.mu.RUnlock()
		if sess != nil {
			s.Screen = sess.State().Screen
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
