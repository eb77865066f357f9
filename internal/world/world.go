package world

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTooManySessions is returned by Manager.Create when the limit is reached.
var ErrTooManySessions = errors.New("too many sessions")

// Manager owns the sessions of a multi-user host. Each session is one
// image with its own colors, waypoints and grid.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*managed
	opts     Options
	limit    int
	now      func() time.Time
}

type managed struct {
	session *Session
	touched time.Time
}

// NewManager creates a manager. New sessions use opts; limit <= 0 means
// unlimited.
func NewManager(opts Options, limit int) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*managed),
		opts:     opts,
		limit:    limit,
		now:      time.Now,
	}
}

// Create registers a new empty session.
func (m *Manager) Create() (uuid.UUID, *Session, error) {
	id := uuid.New()
	opts := m.opts
	opts.Logger = m.opts.Logger.With(zap.String("session", id.String()))
	s, err := NewSession(opts)
	if err != nil {
		return uuid.Nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.limit > 0 && len(m.sessions) >= m.limit {
		return uuid.Nil, nil, ErrTooManySessions
	}
	m.sessions[id] = &managed{session: s, touched: m.now()}
	return id, s, nil
}

// Get returns a session and marks it as recently used.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.touched = m.now()
	return e.session, true
}

// Delete removes a session. Returns false if it did not exist.
func (m *Manager) Delete(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Range calls fn for each session until fn returns false. fn must not call
// back into the manager.
func (m *Manager) Range(fn func(id uuid.UUID, s *Session) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, e := range m.sessions {
		if !fn(id, e.session) {
			return
		}
	}
}

// Sweep deletes sessions unused for longer than idle and returns how many
// were removed.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if e.touched.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.opts.Logger.Info("idle sessions removed", zap.Int("count", removed), zap.Int("remaining", len(m.sessions)))
	}
	return removed
}
