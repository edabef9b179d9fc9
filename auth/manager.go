// Package auth wires the exchange client, session cache, refresh coordinator,
// request pipeline and identity view into one signed-in user's session.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/config"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/jrsteele09/go-dashboard-auth/pipeline"
	"github.com/jrsteele09/go-dashboard-auth/refresh"
	"github.com/jrsteele09/go-dashboard-auth/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Manager owns one session. It is safe for concurrent use.
type Manager struct {
	exchange  *exchange.Client
	cache     *session.Cache
	coord     *refresh.Coordinator
	transport *pipeline.Transport
	client    *pipeline.Client
	view      *identity.View

	settings settings
	logger   zerolog.Logger
}

type settings struct {
	cacheTTL          time.Duration
	skew              time.Duration
	lifetime          time.Duration
	timeout           time.Duration
	maxRetries        int
	decoder           identity.Decoder
	base              http.RoundTripper
	onUnauthenticated func(signInURL string)
	nowTime           func() time.Time
}

// ManagerOption defines a function type to modify the Manager's settings.
type ManagerOption func(*settings)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(s *settings) {
		s.nowTime = nowFunc
	}
}

func WithCacheTTL(ttl time.Duration) ManagerOption {
	return func(s *settings) {
		s.cacheTTL = ttl
	}
}

func WithRefreshSkew(skew time.Duration) ManagerOption {
	return func(s *settings) {
		s.skew = skew
	}
}

func WithAccessTokenLifetime(lifetime time.Duration) ManagerOption {
	return func(s *settings) {
		s.lifetime = lifetime
	}
}

// WithTimeout bounds the refresh exchange and the shared session fetch.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(s *settings) {
		s.timeout = timeout
	}
}

func WithMaxRetries(n int) ManagerOption {
	return func(s *settings) {
		s.maxRetries = n
	}
}

// WithDecoder reads identity out of refreshed access tokens.
func WithDecoder(d identity.Decoder) ManagerOption {
	return func(s *settings) {
		s.decoder = d
	}
}

// WithBaseTransport sets the RoundTripper under the authenticated pipeline.
func WithBaseTransport(rt http.RoundTripper) ManagerOption {
	return func(s *settings) {
		s.base = rt
	}
}

// WithOnUnauthenticated runs when the pipeline gives up on a request.
func WithOnUnauthenticated(fn func(signInURL string)) ManagerOption {
	return func(s *settings) {
		s.onUnauthenticated = fn
	}
}

// ConfigOptions maps the loaded configuration onto Manager options. The
// token decoder it builds is shared by every Manager given these options.
func ConfigOptions(ctx context.Context, cfg interface {
	config.BackendConfig
	config.SessionConfig
	config.TokenConfig
}) ([]ManagerOption, error) {
	opts := []ManagerOption{
		WithCacheTTL(cfg.GetSessionCacheTTL()),
		WithRefreshSkew(cfg.GetRefreshSkew()),
		WithAccessTokenLifetime(cfg.GetAccessTokenLifetime()),
		WithTimeout(cfg.GetAuthTimeout()),
		WithMaxRetries(cfg.GetMaxAuthRetries()),
	}

	switch cfg.GetTokenDecoder() {
	case config.TokenDecoderNone:
	case config.TokenDecoderUnverified:
		opts = append(opts, WithDecoder(identity.UnverifiedDecoder{}))
	case config.TokenDecoderJWKS:
		if cfg.GetTokenIssuer() == "" || cfg.GetJWKSURL() == "" {
			return nil, errors.New(errors.ErrInvalidInput, "auth.ConfigOptions", 0, fmt.Errorf("jwks token decoder needs TOKEN_ISSUER and JWKS_URL"))
		}
		opts = append(opts, WithDecoder(identity.NewRemoteKeyDecoder(ctx, cfg.GetTokenIssuer(), cfg.GetJWKSURL(), cfg.GetTokenAudience())))
	default:
		return nil, errors.New(errors.ErrInvalidInput, "auth.ConfigOptions", 0, fmt.Errorf("unknown token decoder %q", cfg.GetTokenDecoder()))
	}
	return opts, nil
}

// NewManager builds an empty, signed-out session around ex.
func NewManager(ex *exchange.Client, options ...ManagerOption) *Manager {
	st := settings{
		skew:       refresh.DefaultSkew,
		lifetime:   refresh.DefaultLifetime,
		timeout:    refresh.DefaultTimeout,
		maxRetries: pipeline.DefaultMaxRetries,
		base:       http.DefaultTransport,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(&st)
	}

	m := &Manager{
		exchange: ex,
		view:     identity.NewView(),
		settings: st,
		logger:   log.With().Str("component", "auth").Logger(),
	}

	m.cache = session.NewCache(
		session.Revalidate(ex, st.nowTime),
		session.WithTTL(st.cacheTTL),
		session.WithFetchTimeout(st.timeout),
		session.WithNowFunc(st.nowTime),
	)
	m.cache.OnChange(func(s *session.Session) {
		m.view.Recompute(identityOf(s), s.HasAccessToken())
	})

	coordOpts := []refresh.Option{
		refresh.WithSkew(st.skew),
		refresh.WithLifetime(st.lifetime),
		refresh.WithTimeout(st.timeout),
		refresh.WithNowFunc(st.nowTime),
	}
	if st.decoder != nil {
		coordOpts = append(coordOpts, refresh.WithDecoder(st.decoder))
	}
	m.coord = refresh.New(ex, m.cache, coordOpts...)

	pipeOpts := []pipeline.Option{
		pipeline.WithBase(st.base),
		pipeline.WithMaxRetries(st.maxRetries),
	}
	if st.onUnauthenticated != nil {
		pipeOpts = append(pipeOpts, pipeline.WithOnUnauthenticated(st.onUnauthenticated))
	}
	m.transport = pipeline.NewTransport(ex.BaseURL(), m.coord, ex, m.cache, pipeOpts...)
	m.client = pipeline.NewClient(ex.BaseURL(), m.transport)
	return m
}

func identityOf(s *session.Session) *identity.Identity {
	if s == nil {
		return nil
	}
	return s.Identity
}

// Login exchanges credentials and, on success, starts a fresh session.
func (m *Manager) Login(ctx context.Context, email, password string) (*identity.Identity, error) {
	res, err := m.exchange.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	user := res.User
	m.cache.Set(session.New(res.Tokens, &user, m.settings.nowTime().Add(m.settings.lifetime)))
	m.logger.Info().Str("user_id", user.ID).Msg("signed in")
	return user.Clone(), nil
}

// Logout clears the session whatever the backend says. The backend call is
// best-effort and is skipped when there is no access token.
func (m *Manager) Logout(ctx context.Context) {
	cur := m.cache.Current()
	m.cache.Clear()
	if cur.HasAccessToken() {
		m.exchange.Logout(ctx, cur.AccessToken)
	}
}

// SignUp registers a new owner account. It does not sign the user in.
func (m *Manager) SignUp(ctx context.Context, req exchange.SignUpRequest) (string, error) {
	return m.exchange.SignUp(ctx, req)
}

// Session returns the cached session, revalidating it once the TTL lapses.
func (m *Manager) Session(ctx context.Context) (*session.Session, error) {
	return m.cache.Get(ctx)
}

// User is the signed-in identity, or nil. It never touches the network.
func (m *Manager) User() *identity.Identity {
	return m.view.User()
}

func (m *Manager) IsAuthenticated() bool {
	return m.view.IsAuthenticated()
}

// HasRole is true when the signed-in user holds any of required.
func (m *Manager) HasRole(required ...identity.Role) bool {
	return m.view.HasRole(required...)
}

// UpdateRoles replaces the roles of the signed-in identity and nothing else.
func (m *Manager) UpdateRoles(roles ...identity.Role) error {
	for _, r := range roles {
		if !r.Valid() {
			return errors.New(errors.ErrInvalidInput, "auth.UpdateRoles", 0, fmt.Errorf("unknown role %q", r))
		}
	}
	_, ok := m.cache.Update(func(cur *session.Session) (*session.Session, bool) {
		if cur == nil || cur.Identity == nil {
			return nil, false
		}
		next := cur.Clone()
		next.Identity = cur.Identity.WithRoles(roles)
		return next, true
	})
	if !ok {
		return errors.New(errors.ErrNotAuthenticated, "auth.UpdateRoles", 0, nil)
	}
	return nil
}

// Client issues typed JSON requests through the authenticated pipeline.
func (m *Manager) Client() *pipeline.Client {
	return m.client
}

// Transport is the authenticated RoundTripper, for reverse proxies.
func (m *Manager) Transport() *pipeline.Transport {
	return m.transport
}

// State reports where the session sits in the refresh lifecycle.
func (m *Manager) State() refresh.State {
	return m.coord.State()
}

// TokenSource hands out the current access token, refreshing it first when
// needed. It fails with ErrNotAuthenticated once no token can be obtained.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return m.coord.TokenSource(ctx)
}
