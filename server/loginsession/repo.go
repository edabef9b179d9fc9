package loginsession

import (
	"time"

	"github.com/jrsteele09/go-dashboard-auth/auth"
)

// Session binds one browser to its own auth.Manager.
type Session struct {
	ID      string
	Manager *auth.Manager

	CreatedAt time.Time
	LastSeen  time.Time
}

type Repo interface {
	Upsert(sessionID string, session *Session) error
	Get(sessionID string) (*Session, error)
	Delete(sessionID string) error
	// Touch records activity on a session.
	Touch(sessionID string, at time.Time) error
	// DeleteIdle removes sessions not seen since before and returns them.
	DeleteIdle(before time.Time) []*Session
}
