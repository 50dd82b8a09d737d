package session

import (
	"errors"
	"sync"

	"github.com/decoycall/decoycall/pkg/bus"
)

// ErrDuplicateCall is returned when a second stream arrives for a call
// id that already has a live session.
var ErrDuplicateCall = errors.New("session: call already active")

// Manager tracks live sessions by call id. Sessions enter at stream
// start and leave at teardown; lookups never create.
type Manager struct {
	bus *bus.Bus

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager. The bus may be nil, in which
// case sessions emit no events.
func NewManager(b *bus.Bus) *Manager {
	return &Manager{bus: b, sessions: make(map[string]*Session)}
}

// Create registers a new session for callID. Rejects duplicates so two
// streams can never fight over one call's state.
func (m *Manager) Create(callID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[callID]; ok {
		return nil, ErrDuplicateCall
	}
	s := New(callID, m.bus)
	m.sessions[callID] = s
	return s, nil
}

// Get returns the live session for callID, or nil.
func (m *Manager) Get(callID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[callID]
}

// Remove drops the session at teardown. Idempotent.
func (m *Manager) Remove(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
}

// Len reports how many calls are live.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
