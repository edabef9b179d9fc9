package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL          = 30 * time.Second
	defaultFetchTimeout = 10 * time.Second
	fetchKey            = "session"
)

// FetchFunc resolves the session from the identity provider. previous is the
// last cached value (possibly nil or stale).
type FetchFunc func(ctx context.Context, previous *Session) (*Session, error)

type entry struct {
	session  *Session
	cachedAt time.Time
	valid    bool
}

// Cache is the single authoritative holder of the current Session.
//
// Reads within the TTL are served from memory. Past the TTL exactly one fetch
// runs no matter how many callers ask, and all of them see its outcome.
type Cache struct {
	fetch        FetchFunc
	ttl          time.Duration
	fetchTimeout time.Duration
	nowFunc      func() time.Time
	logger       zerolog.Logger

	// writeMu orders writes together with their notifications, so watchers
	// observe values in the order they were stored.
	writeMu sync.Mutex

	mu         sync.Mutex
	entry      entry
	generation uint64
	watchers   []func(*Session)

	group singleflight.Group
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithNowFunc(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

// WithFetchTimeout bounds the shared fetch independently of any one caller.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.fetchTimeout = d
	}
}

func WithLogger(l zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

func NewCache(fetch FetchFunc, options ...CacheOption) *Cache {
	c := &Cache{
		fetch:  fetch,
		logger: log.With().Str("component", "session").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = defaultFetchTimeout
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c
}

// Get returns the cached session while it is younger than the TTL, otherwise
// it joins (or starts) the single in-flight fetch. A nil session with a nil
// error means nobody is signed in.
func (c *Cache) Get(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.freshLocked() {
		s := c.entry.session.Clone()
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(fetchKey, func() (any, error) {
		return c.runFetch(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runFetch executes under singleflight. One caller cancelling must not fail
// the others, so the fetch gets its own deadline.
func (c *Cache) runFetch(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	// A fetch that finished between the caller's check and this call
	// already produced a fresh entry.
	if c.freshLocked() {
		current := c.entry.session.Clone()
		c.mu.Unlock()
		return current, nil
	}
	previous := c.entry.session.Clone()
	generation := c.generation
	c.mu.Unlock()

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	fetched, err := c.fetch(fctx, previous)
	if err != nil {
		c.logger.Warn().Err(err).Msg("session fetch failed")
		return nil, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	// A Set or Clear that landed while fetching wins over what was fetched.
	if c.generation != generation {
		current := c.entry.session.Clone()
		c.mu.Unlock()
		return current, nil
	}
	c.writeLocked(fetched)
	watchers, snapshot := c.watchersLocked()
	c.mu.Unlock()

	notify(watchers, snapshot)
	return fetched.Clone(), nil
}

// Set overwrites the cache and restarts the TTL. Used after login and refresh.
func (c *Cache) Set(s *Session) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.writeLocked(s)
	watchers, snapshot := c.watchersLocked()
	c.mu.Unlock()

	notify(watchers, snapshot)
}

// Clear empties the cache and restarts the TTL, so the next Get within the
// TTL returns nil instead of fetching again.
func (c *Cache) Clear() {
	c.Set(nil)
}

// Update applies fn to the current value atomically. fn returns the next
// value and whether to write it.
func (c *Cache) Update(fn func(current *Session) (*Session, bool)) (*Session, bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	next, ok := fn(c.entry.session.Clone())
	if !ok {
		current := c.entry.session.Clone()
		c.mu.Unlock()
		return current, false
	}
	c.writeLocked(next)
	watchers, snapshot := c.watchersLocked()
	c.mu.Unlock()

	notify(watchers, snapshot)
	return next.Clone(), true
}

// Current returns whatever is held without fetching, stale or not.
func (c *Cache) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.session.Clone()
}

// OnChange registers fn to run after every write with the new value.
// Watchers run one write at a time and must not write to the cache.
func (c *Cache) OnChange(fn func(*Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

func (c *Cache) freshLocked() bool {
	return c.entry.valid && c.nowFunc().Sub(c.entry.cachedAt) < c.ttl
}

func (c *Cache) writeLocked(s *Session) {
	c.entry = entry{session: s.Clone(), cachedAt: c.nowFunc(), valid: true}
	c.generation++
}

func (c *Cache) watchersLocked() ([]func(*Session), *Session) {
	if len(c.watchers) == 0 {
		return nil, nil
	}
	watchers := make([]func(*Session), len(c.watchers))
	copy(watchers, c.watchers)
	return watchers, c.entry.session.Clone()
}

func notify(watchers []func(*Session), s *Session) {
	for _, w := range watchers {
		w(s.Clone())
	}
}
