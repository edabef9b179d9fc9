package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
)

// IdentityFetcher is the part of the exchange client the cache needs.
type IdentityFetcher interface {
	Me(ctx context.Context, accessToken string) (*identity.Identity, error)
}

// Revalidate builds the cache's FetchFunc. It re-reads the identity behind the
// cached access token so identity always comes from the backend. A token the
// backend no longer accepts is marked stale so the coordinator refreshes it.
func Revalidate(f IdentityFetcher, now func() time.Time) FetchFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, previous *Session) (*Session, error) {
		if !previous.HasAccessToken() {
			return previous, nil
		}

		user, err := f.Me(ctx, previous.AccessToken)
		switch {
		case err == nil:
			next := previous.Clone()
			next.Identity = user
			return next, nil
		case errors.Is(err, errors.ErrNotAuthenticated):
			next := previous.Clone()
			if t := now(); next.AccessTokenExpiresAt.After(t) {
				next.AccessTokenExpiresAt = t
			}
			return next, nil
		default:
			return nil, errors.Wrapf(err, "session.Revalidate")
		}
	}
}
