package session_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/jrsteele09/go-dashboard-auth/session"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testSession(clock *fakeClock) *session.Session {
	return session.New(
		exchange.Tokens{AccessToken: "at-1", RefreshToken: "rt-1"},
		&identity.Identity{ID: "user-1", Name: "John", Email: "owner@example.com", Roles: []identity.Role{identity.RoleOwner}},
		clock.Now().Add(15*time.Minute),
	)
}

// countingFetch returns a fixed session (or error) after release is closed.
type countingFetch struct {
	calls   atomic.Int32
	release chan struct{}
	result  *session.Session
	err     error
}

func (f *countingFetch) fetch(ctx context.Context, _ *session.Session) (*session.Session, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

func TestCache_DeduplicatesConcurrentFetches(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetch{release: make(chan struct{}), result: testSession(clock)}
	cache := session.NewCache(f.fetch, session.WithNowFunc(clock.Now))

	const callers = 25
	results := make([]*session.Session, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	require.EqualValues(t, 1, f.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
	require.Equal(t, "at-1", results[0].AccessToken)
}

func TestCache_SharesFetchError(t *testing.T) {
	clock := newFakeClock()
	boom := fmt.Errorf("identity provider down")
	f := &countingFetch{release: make(chan struct{}), err: boom}
	cache := session.NewCache(f.fetch, session.WithNowFunc(clock.Now))

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Get(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	require.EqualValues(t, 1, f.calls.Load())
	for _, err := range errs {
		require.ErrorIs(t, err, boom)
	}

	// Errors are not cached: the next call tries again.
	f.err = nil
	f.result = testSession(clock)
	s, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	require.EqualValues(t, 2, f.calls.Load())
}

func TestCache_TTL(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetch{result: testSession(clock)}
	cache := session.NewCache(f.fetch, session.WithNowFunc(clock.Now), session.WithTTL(30*time.Second))
	ctx := context.Background()

	_, err := cache.Get(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.calls.Load())

	clock.Advance(30*time.Second - time.Millisecond)
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.calls.Load(), "within TTL must be served from cache")

	clock.Advance(2 * time.Millisecond)
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, f.calls.Load(), "past TTL must fetch exactly once")
}

func TestCache_ClearShortCircuitsRefetch(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetch{result: testSession(clock)}
	cache := session.NewCache(f.fetch, session.WithNowFunc(clock.Now))
	ctx := context.Background()

	cache.Set(testSession(clock))
	cache.Clear()

	s, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, s)
	require.Zero(t, f.calls.Load())

	clock.Advance(31 * time.Second)
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, f.calls.Load())
}

func TestCache_SetDuringFetchWins(t *testing.T) {
	clock := newFakeClock()
	stale := testSession(clock)
	f := &countingFetch{release: make(chan struct{}), result: stale}
	cache := session.NewCache(f.fetch, session.WithNowFunc(clock.Now))

	done := make(chan *session.Session)
	go func() {
		s, _ := cache.Get(context.Background())
		done <- s
	}()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	cache.Clear()
	close(f.release)

	require.Nil(t, <-done)
	require.Nil(t, cache.Current())
}

func TestCache_CallerCancellation(t *testing.T) {
	clock := newFakeClock()
	f := &countingFetch{release: make(chan struct{}), result: testSession(clock)}
	cache := session.NewCache(f.fetch, session.WithNowFunc(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		_, err := cache.Get(ctx)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	// The shared fetch still completes and fills the cache.
	close(f.release)
	require.Eventually(t, func() bool { return cache.Current() != nil }, time.Second, time.Millisecond)
}

func TestCache_UpdateAndWatchers(t *testing.T) {
	clock := newFakeClock()
	cache := session.NewCache((&countingFetch{}).fetch, session.WithNowFunc(clock.Now))

	var seen []*session.Session
	cache.OnChange(func(s *session.Session) { seen = append(seen, s) })

	cache.Set(testSession(clock))
	_, ok := cache.Update(func(cur *session.Session) (*session.Session, bool) {
		if cur.RefreshToken != "rt-other" {
			return nil, false
		}
		return cur.WithoutTokens(), true
	})
	require.False(t, ok)
	require.Equal(t, "at-1", cache.Current().AccessToken)

	next, ok := cache.Update(func(cur *session.Session) (*session.Session, bool) {
		return cur.WithoutTokens(), true
	})
	require.True(t, ok)
	require.Empty(t, next.AccessToken)
	require.NotNil(t, next.Identity)

	require.Len(t, seen, 2)
	require.Equal(t, "at-1", seen[0].AccessToken)
	require.Empty(t, seen[1].RefreshToken)

	current := cache.Current()
	require.False(t, current.HasAccessToken())
	require.Equal(t, "user-1", current.Identity.ID)
}

func TestCache_WatchersSeeWritesInOrder(t *testing.T) {
	clock := newFakeClock()
	cache := session.NewCache((&countingFetch{}).fetch, session.WithNowFunc(clock.Now))

	entered := make(chan struct{})
	release := make(chan struct{})
	var blockOnce sync.Once
	cache.OnChange(func(s *session.Session) {
		if s != nil {
			blockOnce.Do(func() {
				close(entered)
				<-release
			})
		}
	})

	view := identity.NewView()
	cache.OnChange(func(s *session.Session) {
		if s == nil {
			view.Recompute(nil, false)
			return
		}
		view.Recompute(s.Identity, s.HasAccessToken())
	})

	setDone := make(chan struct{})
	go func() {
		defer close(setDone)
		cache.Set(testSession(clock))
	}()
	<-entered

	clearDone := make(chan struct{})
	go func() {
		defer close(clearDone)
		cache.Clear()
	}()

	// Clear queues behind the pending notification instead of overtaking it.
	select {
	case <-clearDone:
		t.Fatal("Clear finished while an earlier notification was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-setDone
	<-clearDone

	require.Nil(t, cache.Current())
	require.False(t, view.IsAuthenticated())
	require.Nil(t, view.User())
}

type fakeMe struct {
	calls atomic.Int32
	user  *identity.Identity
	err   error
}

func (f *fakeMe) Me(_ context.Context, _ string) (*identity.Identity, error) {
	f.calls.Add(1)
	return f.user, f.err
}

func TestRevalidate(t *testing.T) {
	clock := newFakeClock()
	ctx := context.Background()

	t.Run("no session makes no call", func(t *testing.T) {
		me := &fakeMe{}
		s, err := session.Revalidate(me, clock.Now)(ctx, nil)
		require.NoError(t, err)
		require.Nil(t, s)
		require.Zero(t, me.calls.Load())
	})

	t.Run("identity replaced from backend", func(t *testing.T) {
		me := &fakeMe{user: &identity.Identity{ID: "user-1", Email: "owner@example.com", Roles: []identity.Role{identity.RoleAdmin}}}
		s, err := session.Revalidate(me, clock.Now)(ctx, testSession(clock))
		require.NoError(t, err)
		require.True(t, s.Identity.HasRole(identity.RoleAdmin))
		require.False(t, s.Identity.HasRole(identity.RoleOwner))
	})

	t.Run("rejected token marked stale", func(t *testing.T) {
		me := &fakeMe{err: errors.New(errors.ErrNotAuthenticated, "exchange.Me", 401, nil)}
		s, err := session.Revalidate(me, clock.Now)(ctx, testSession(clock))
		require.NoError(t, err)
		require.True(t, s.Stale(clock.Now()))
		require.Equal(t, "rt-1", s.RefreshToken)
	})

	t.Run("transport failure surfaces", func(t *testing.T) {
		me := &fakeMe{err: errors.New(errors.ErrTransport, "exchange.Me", 0, nil)}
		_, err := session.Revalidate(me, clock.Now)(ctx, testSession(clock))
		require.True(t, errors.Is(err, errors.ErrTransport))
	})
}

func TestSession_Helpers(t *testing.T) {
	clock := newFakeClock()
	s := testSession(clock)

	require.False(t, s.Stale(clock.Now()))
	require.True(t, s.Stale(clock.Now().Add(15*time.Minute)))

	tok := s.Token()
	require.Equal(t, "at-1", tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Equal(t, s.AccessTokenExpiresAt, tok.Expiry)

	cleared := s.WithoutTokens()
	require.Nil(t, cleared.Token())
	require.True(t, cleared.Stale(clock.Now()))
	require.Equal(t, "at-1", s.AccessToken, "original untouched")

	var none *session.Session
	require.Nil(t, none.Clone())
	require.Equal(t, exchange.Tokens{}, none.Tokens())
}
