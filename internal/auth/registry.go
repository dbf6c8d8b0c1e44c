package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serviqo/serviqo/pkg/metrics"
)

const (
	// DefaultSessionMaxAge bounds the absolute lifetime of a session.
	DefaultSessionMaxAge = 24 * time.Hour
	// DefaultSessionIdleLimit bounds the time between requests on a session.
	DefaultSessionIdleLimit = 2 * time.Hour
)

// Session is an ephemeral record held only in process memory. Restarting the
// process drops every session, which implicitly forces re-authentication.
type Session struct {
	ID          string
	PrincipalID string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// RegistryConfig describes tunable behaviour for the SessionRegistry.
type RegistryConfig struct {
	MaxAge    time.Duration
	IdleLimit time.Duration
	Clock     func() time.Time
}

// SessionRegistry maps session identifiers to principals. All mutation goes
// through the mutex; the registry is safe for concurrent use.
type SessionRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	maxAge    time.Duration
	idleLimit time.Duration
	now       func() time.Time
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(cfg RegistryConfig) *SessionRegistry {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	idleLimit := cfg.IdleLimit
	if idleLimit <= 0 {
		idleLimit = DefaultSessionIdleLimit
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SessionRegistry{
		sessions:  make(map[string]Session),
		maxAge:    maxAge,
		idleLimit: idleLimit,
		now:       clock,
	}
}

// Insert registers a new session for the principal and returns it.
func (r *SessionRegistry) Insert(principalID string) Session {
	now := r.now()
	session := Session{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		CreatedAt:   now,
		LastSeenAt:  now,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	metrics.ActiveSessions.Inc()
	return session
}

// Lookup returns the live session for the identifier. Expired or idle
// sessions are removed on sight and reported as absent.
func (r *SessionRegistry) Lookup(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}

	if r.expired(session, r.now()) {
		delete(r.sessions, sessionID)
		metrics.ActiveSessions.Dec()
		return Session{}, false
	}

	return session, true
}

// Touch refreshes the idle timer for a live session.
func (r *SessionRegistry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	session.LastSeenAt = r.now()
	r.sessions[sessionID] = session
}

// Invalidate removes a single session, reporting whether it existed.
func (r *SessionRegistry) Invalidate(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	metrics.ActiveSessions.Dec()
	return true
}

// InvalidatePrincipal removes every session belonging to the principal and
// returns how many were dropped. Called after role changes so the next
// request re-authenticates and picks up the new role.
func (r *SessionRegistry) InvalidatePrincipal(principalID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if session.PrincipalID == principalID {
			delete(r.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		metrics.ActiveSessions.Sub(float64(removed))
	}
	return removed
}

// Sweep drops expired and idle sessions, returning the number removed.
func (r *SessionRegistry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if r.expired(session, now) {
			delete(r.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		metrics.ActiveSessions.Sub(float64(removed))
	}
	return removed
}

// Len reports the number of sessions currently held, live or not yet swept.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) expired(session Session, now time.Time) bool {
	if now.Sub(session.CreatedAt) >= r.maxAge {
		return true
	}
	return now.Sub(session.LastSeenAt) >= r.idleLimit
}
