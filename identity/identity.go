// Package identity owns the process-global mapping from volatile
// connection identifiers to stable logical players. The transport hands
// out a fresh connection id on every reconnect; everything that must
// survive that churn (score, answers, roster membership) hangs off the
// player id instead, and this map is the only place the two are tied
// together.
//
// The manager has its own lock and never calls into room state, so it
// can be used from any goroutine without worrying about lock ordering.
package identity

import (
	"sync"
	"time"
)

// Binding ties a live connection to the player it currently speaks for.
type Binding struct {
	RoomCode string
	PlayerID string
	BoundAt  time.Time
}

type Manager struct {
	mu     sync.RWMutex
	byConn map[string]Binding
}

func NewManager() *Manager {
	return &Manager{
		byConn: make(map[string]Binding),
	}
}

// Bind associates connID with a player, replacing any previous binding
// for that connection.
func (m *Manager) Bind(connID, roomCode, playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byConn[connID] = Binding{
		RoomCode: roomCode,
		PlayerID: playerID,
		BoundAt:  time.Now(),
	}
}

// Lookup resolves a connection to its player, if any.
func (m *Manager) Lookup(connID string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.byConn[connID]
	return b, ok
}

// Unbind drops the binding for connID and returns it. Unknown
// connections are a silent no-op: an absent record just means the
// connection was never reconciled, or already has been.
func (m *Manager) Unbind(connID string) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byConn[connID]
	if ok {
		delete(m.byConn, connID)
	}
	return b, ok
}

// Rebind moves a binding from an old connection id to a new one,
// preserving the player it points at. Returns the binding and whether
// the old connection was known.
func (m *Manager) Rebind(oldConnID, newConnID string) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byConn[oldConnID]
	if !ok {
		return Binding{}, false
	}
	delete(m.byConn, oldConnID)
	b.BoundAt = time.Now()
	m.byConn[newConnID] = b
	return b, true
}

// Len reports the number of live bindings.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}
