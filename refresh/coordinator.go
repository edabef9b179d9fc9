// Package refresh decides when the access token needs refreshing and makes
// sure at most one refresh exchange is outstanding at a time.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/jrsteele09/go-dashboard-auth/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSkew     = 5 * time.Minute
	DefaultLifetime = 15 * time.Minute
	DefaultTimeout  = 10 * time.Second
)

// Refresher mints a new token pair from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*exchange.Tokens, error)
}

// Store is the part of the session cache the coordinator reads and writes.
type Store interface {
	Get(ctx context.Context) (*session.Session, error)
	Current() *session.Session
	Update(fn func(current *session.Session) (*session.Session, bool)) (*session.Session, bool)
}

// attempt is the in-flight refresh marker. done is closed once session and
// err are final.
type attempt struct {
	done    chan struct{}
	session *session.Session
	err     error
}

func settled(s *session.Session, err error) *attempt {
	a := &attempt{done: make(chan struct{}), session: s, err: err}
	close(a.done)
	return a
}

type Coordinator struct {
	refresher Refresher
	store     Store
	decoder   identity.Decoder
	skew      time.Duration
	lifetime  time.Duration
	timeout   time.Duration
	nowFunc   func() time.Time
	logger    zerolog.Logger

	mu       sync.Mutex
	inflight *attempt
}

type Option func(*Coordinator)

func WithSkew(skew time.Duration) Option {
	return func(c *Coordinator) {
		c.skew = skew
	}
}

// WithLifetime sets how long a freshly refreshed access token is trusted.
func WithLifetime(lifetime time.Duration) Option {
	return func(c *Coordinator) {
		c.lifetime = lifetime
	}
}

// WithTimeout bounds the refresh exchange and every wait on it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowFunc = now
	}
}

// WithDecoder replaces the identity with the claims of each refreshed token.
func WithDecoder(d identity.Decoder) Option {
	return func(c *Coordinator) {
		c.decoder = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

func New(refresher Refresher, store Store, options ...Option) *Coordinator {
	c := &Coordinator{
		refresher: refresher,
		store:     store,
		skew:      DefaultSkew,
		lifetime:  DefaultLifetime,
		timeout:   DefaultTimeout,
		nowFunc:   time.Now,
		logger:    log.With().Str("component", "refresh").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Refreshing reports whether a refresh exchange is in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// State classifies the session currently held, without fetching.
func (c *Coordinator) State() State {
	if c.Refreshing() {
		return Refreshing
	}
	return Classify(c.store.Current(), c.nowFunc(), c.skew)
}

// Ensure returns the session a request should be authorized with.
//
// A valid session comes back untouched. A session close to expiry starts a
// background refresh and comes back untouched. An expired session waits for
// the refresh, joining one already in flight. A session with no refresh token
// is returned as it is and the request goes out unauthenticated.
//
// When the refresh fails the returned session has no tokens and err says why.
func (c *Coordinator) Ensure(ctx context.Context) (*session.Session, error) {
	s, err := c.store.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("session lookup failed, using last known session")
		s = c.store.Current()
	}
	if s == nil {
		return nil, nil
	}

	now := c.nowFunc()
	switch Classify(s, now, c.skew) {
	case Valid:
		return s, nil
	case NearExpiry:
		if s.HasRefreshToken() {
			c.begin(c.stale)
		}
		return s, nil
	default:
		if !s.HasRefreshToken() {
			return s, nil
		}
		return c.wait(ctx, c.begin(c.stale))
	}
}

// Refresh forces a refresh after the backend rejected rejectedAccessToken.
// When the session already carries a different access token, another caller
// has refreshed in the meantime and that session is returned instead.
func (c *Coordinator) Refresh(ctx context.Context, rejectedAccessToken string) (*session.Session, error) {
	return c.wait(ctx, c.begin(func(cur *session.Session) bool {
		return !cur.HasAccessToken() || cur.AccessToken == rejectedAccessToken
	}))
}

func (c *Coordinator) stale(cur *session.Session) bool {
	return Classify(cur, c.nowFunc(), c.skew) != Valid
}

// begin joins the in-flight attempt, or starts one when need holds for the
// current session.
func (c *Coordinator) begin(need func(current *session.Session) bool) *attempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		return c.inflight
	}

	cur := c.store.Current()
	if cur != nil && !need(cur) {
		return settled(cur, nil)
	}
	if !cur.HasRefreshToken() {
		return settled(cur, errors.New(errors.ErrRefreshRejected, "refresh.Coordinator", 0, fmt.Errorf("no refresh token")))
	}

	a := &attempt{done: make(chan struct{})}
	c.inflight = a
	go c.run(a, cur.RefreshToken)
	return a
}

// run performs the exchange detached from any one caller.
func (c *Coordinator) run(a *attempt, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := c.nowFunc()
	tokens, err := c.refresher.Refresh(ctx, refreshToken)

	var next *session.Session
	if err != nil {
		c.logger.Warn().Err(err).Msg("token refresh failed, clearing session tokens")
		next = c.clearTokens(refreshToken)
	} else {
		next = c.apply(ctx, refreshToken, tokens)
		c.logger.Debug().Dur("dur", c.nowFunc().Sub(start)).Msg("token refreshed")
	}

	c.mu.Lock()
	a.session = next
	a.err = err
	c.inflight = nil
	c.mu.Unlock()
	close(a.done)
}

// apply writes the new pair only if the session still holds the refresh token
// that was spent. A logout during the exchange is never undone.
func (c *Coordinator) apply(ctx context.Context, spent string, tokens *exchange.Tokens) *session.Session {
	var user *identity.Identity
	if c.decoder != nil {
		claims, err := c.decoder.Decode(ctx, tokens.AccessToken)
		if err != nil {
			c.logger.Warn().Err(err).Msg("refreshed access token could not be decoded, keeping identity")
		} else {
			user = claims.Identity
		}
	}

	expiresAt := c.nowFunc().Add(c.lifetime)
	next, ok := c.store.Update(func(cur *session.Session) (*session.Session, bool) {
		if cur == nil || cur.RefreshToken != spent {
			return nil, false
		}
		n := cur.Clone()
		n.AccessToken = tokens.AccessToken
		n.RefreshToken = tokens.RefreshToken
		n.AccessTokenExpiresAt = expiresAt
		if user != nil {
			n.Identity = user
		}
		return n, true
	})
	if !ok {
		c.logger.Debug().Msg("session changed during refresh, discarding new tokens")
	}
	return next
}

func (c *Coordinator) clearTokens(spent string) *session.Session {
	next, _ := c.store.Update(func(cur *session.Session) (*session.Session, bool) {
		if cur == nil || cur.RefreshToken != spent {
			return nil, false
		}
		return cur.WithoutTokens(), true
	})
	return next
}

func (c *Coordinator) wait(ctx context.Context, a *attempt) (*session.Session, error) {
	select {
	case <-a.done:
		return a.session.Clone(), a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
