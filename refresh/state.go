package refresh

import (
	"time"

	"github.com/jrsteele09/go-dashboard-auth/session"
)

// State is where a session sits in the refresh lifecycle.
type State int

const (
	// Valid sessions are used as-is.
	Valid State = iota
	// NearExpiry sessions are still usable but a background refresh starts.
	NearExpiry
	// ExpiredOrMissing sessions must be refreshed before authorizing anything.
	ExpiredOrMissing
	// Refreshing means an exchange is in flight and callers join it.
	Refreshing
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case NearExpiry:
		return "near_expiry"
	case ExpiredOrMissing:
		return "expired_or_missing"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Classify places s relative to now. The refresh window opens skew before
// the access token expires.
func Classify(s *session.Session, now time.Time, skew time.Duration) State {
	if s.Stale(now) {
		return ExpiredOrMissing
	}
	if !now.Before(s.AccessTokenExpiresAt.Add(-skew)) {
		return NearExpiry
	}
	return Valid
}
