package loginsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
)

// InMemoryLoginSessionRepo is an in-memory implementation of Repo
type InMemoryLoginSessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session // sessionID -> Session
}

// NewInMemoryLoginSessionRepo creates a new in-memory login session repository
func NewInMemoryLoginSessionRepo() *InMemoryLoginSessionRepo {
	return &InMemoryLoginSessionRepo{
		sessions: make(map[string]*Session),
	}
}

// Upsert creates or updates a login session
func (r *InMemoryLoginSessionRepo) Upsert(sessionID string, session *Session) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}
	if session == nil || session.Manager == nil {
		return fmt.Errorf("session with a manager is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = session
	return nil
}

// Get retrieves a login session by ID
func (r *InMemoryLoginSessionRepo) Get(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, errors.ErrSessionNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return session, nil
}

// Delete removes a login session
func (r *InMemoryLoginSessionRepo) Delete(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID) // Already doesn't exist, no error
	return nil
}

// Touch moves LastSeen forward
func (r *InMemoryLoginSessionRepo) Touch(sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return errors.ErrSessionNotFound
	}
	if at.After(session.LastSeen) {
		session.LastSeen = at
	}
	return nil
}

func (r *InMemoryLoginSessionRepo) DeleteIdle(before time.Time) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*Session
	for id, s := range r.sessions {
		if s.LastSeen.Before(before) {
			removed = append(removed, s)
			delete(r.sessions, id)
		}
	}
	return removed
}
