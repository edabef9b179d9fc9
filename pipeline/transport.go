// Package pipeline wraps outbound calls to the management backend with the
// bearer token, pre-emptive refresh and bounded 401 recovery.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/jrsteele09/go-dashboard-auth/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxRetries = 3
	DefaultSignInPath = "/sign-in"
	HeaderRequestID   = "X-Request-Id"
)

type redirectKey struct{}

// WithRedirectPath records the page to return to after sign-in should the
// request end up unauthenticated.
func WithRedirectPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, redirectKey{}, path)
}

func redirectPath(ctx context.Context) string {
	p, _ := ctx.Value(redirectKey{}).(string)
	return p
}

// Coordinator resolves the session a request is authorized with.
type Coordinator interface {
	Ensure(ctx context.Context) (*session.Session, error)
	Refresh(ctx context.Context, rejectedAccessToken string) (*session.Session, error)
}

// StatusProber asks the backend whether the tokens still authenticate.
type StatusProber interface {
	Status(ctx context.Context, tokens exchange.Tokens) (*exchange.Status, error)
}

// SessionStore is what the pipeline needs from the session cache.
type SessionStore interface {
	Current() *session.Session
	Clear()
}

// Transport is an http.RoundTripper for the management backend.
type Transport struct {
	base              http.RoundTripper
	baseURL           *url.URL
	coord             Coordinator
	prober            StatusProber
	store             SessionStore
	maxRetries        int
	signInPath        string
	onUnauthenticated func(signInURL string)
	logger            zerolog.Logger
}

type Option func(*Transport)

// WithBase sets the RoundTripper that actually sends requests.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithMaxRetries bounds how many times a 401'd request is reissued.
func WithMaxRetries(n int) Option {
	return func(t *Transport) {
		t.maxRetries = n
	}
}

// WithSignInPath sets where unauthenticated callers are sent.
func WithSignInPath(path string) Option {
	return func(t *Transport) {
		t.signInPath = path
	}
}

// WithOnUnauthenticated registers the hard redirect hook. It runs once the
// pipeline has given up on a request.
func WithOnUnauthenticated(fn func(signInURL string)) Option {
	return func(t *Transport) {
		t.onUnauthenticated = fn
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

func NewTransport(baseURL *url.URL, coord Coordinator, prober StatusProber, store SessionStore, options ...Option) *Transport {
	t := &Transport{
		base:       http.DefaultTransport,
		baseURL:    baseURL,
		coord:      coord,
		prober:     prober,
		store:      store,
		maxRetries: DefaultMaxRetries,
		signInPath: DefaultSignInPath,
		logger:     log.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// RoundTrip attaches the bearer token and recovers from 401s.
//
// Auth endpoints pass straight through without a token. When the pipeline
// gives up the session is cleared and the error is a
// *errors.NotAuthenticatedError carrying the sign-in redirect.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if Bypassed(t.baseURL, req.URL) {
		out := req.Clone(req.Context())
		out.Header.Del("Authorization")
		return t.base.RoundTrip(out)
	}

	req = req.Clone(req.Context())
	if err := bufferBody(req); err != nil {
		return nil, errors.New(errors.ErrInvalidInput, "pipeline.RoundTrip", 0, err)
	}

	ctx := req.Context()
	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := t.logger.With().Str("request_id", requestID).Str("method", req.Method).Str("path", req.URL.Path).Logger()

	s, err := t.coord.Ensure(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn().Err(err).Msg("session could not be refreshed, sending unauthenticated")
	}

	resp, err := t.send(req, requestID, s)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		drain(resp)
		var used string
		if s != nil {
			used = s.AccessToken
		}

		cur := t.store.Current()
		status, err := t.prober.Status(ctx, cur.Tokens())
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("auth status probe failed")
			resp = nil
			continue
		}
		if !status.HasRefreshToken {
			logger.Info().Int("attempt", attempt).Msg("no refresh token available")
			break
		}

		s, err = t.coord.Refresh(ctx, used)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("refresh after 401 failed")
			if errors.Is(err, errors.ErrRefreshRejected) {
				break
			}
			resp = nil
			continue
		}

		resp, err = t.send(req, requestID, s)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized {
			logger.Debug().Int("attempt", attempt).Msg("recovered from 401")
			return resp, nil
		}
	}

	drain(resp)
	return nil, t.giveUp(req, logger)
}

// SignInURL is the sign-in entry point preserving the path to come back to.
func (t *Transport) SignInURL(redirect string) string {
	if redirect == "" {
		return t.signInPath
	}
	return t.signInPath + "?" + url.Values{"redirect": {redirect}}.Encode()
}

func (t *Transport) giveUp(req *http.Request, logger zerolog.Logger) error {
	t.store.Clear()

	signIn := t.SignInURL(redirectPath(req.Context()))
	logger.Info().Str("sign_in", signIn).Msg("not authenticated, giving up")
	if t.onUnauthenticated != nil {
		t.onUnauthenticated(signIn)
	}
	return &errors.NotAuthenticatedError{SignInURL: signIn, Reason: fmt.Sprintf("%s %s", req.Method, req.URL.Path)}
}

func (t *Transport) send(req *http.Request, requestID string, s *session.Session) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.New(errors.ErrInvalidInput, "pipeline.send", 0, err)
		}
		out.Body = body
	}
	out.Header.Set(HeaderRequestID, requestID)
	out.Header.Del("Authorization")
	if tok := s.Token(); tok != nil {
		tok.SetAuthHeader(out)
	}
	return t.base.RoundTrip(out)
}

// bufferBody makes the body replayable so 401 retries resend it unchanged.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	b, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	req.Body, _ = req.GetBody()
	return nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
