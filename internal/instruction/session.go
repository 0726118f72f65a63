package instruction

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionTTL is how long an "approve session" decision stays valid.
const SessionTTL = time.Hour

// Session is a time-limited blanket approval.
type Session struct {
	ID        string    `json:"verification_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     []string  `json:"scope"`
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// CreateSession mints a session for scope, valid for SessionTTL.
func (m *Manager) CreateSession(scope []string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{
		ID:        uuid.NewString(),
		ExpiresAt: m.now().Add(SessionTTL),
		Scope:     append([]string(nil), scope...),
	}
	m.sessions[s.ID] = s
	m.log.Info("session created", zap.String("verification_id", s.ID), zap.Time("expires_at", s.ExpiresAt), zap.Strings("scope", s.Scope))
	return s
}

// LookupSession returns the session for id. Unknown and expired ids
// both report false.
func (m *Manager) LookupSession(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	if s.Expired(m.now()) {
		delete(m.sessions, id)
		return Session{}, false
	}
	s.Scope = append([]string(nil), s.Scope...)
	return s, true
}

// PruneSessions drops expired sessions and returns how many were removed.
func (m *Manager) PruneSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// SessionCount returns the number of tracked sessions, expired or not.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
