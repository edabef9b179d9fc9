package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/stretchr/testify/require"
)

func TestRunFetch_SkipsWhenAlreadyFresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var calls atomic.Int32
	cache := NewCache(func(context.Context, *Session) (*Session, error) {
		calls.Add(1)
		return nil, nil
	}, WithNowFunc(func() time.Time { return now }))

	// A caller that saw a stale entry reaches the shared fetch only after
	// another write has refreshed it.
	cache.Set(New(exchange.Tokens{AccessToken: "at-1", RefreshToken: "rt-1"}, nil, now.Add(time.Minute)))

	s, err := cache.runFetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-1", s.AccessToken)
	require.Zero(t, calls.Load())

	now = now.Add(defaultTTL)
	_, err = cache.runFetch(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
}
