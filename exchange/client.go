// Package exchange is the stateless transport to the management backend's
// auth endpoints. It never touches the session cache and never retries.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls login, signup, refresh, logout, status and me.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the transport. It must not be wrapped by the
// authenticated pipeline, or refresh calls would recurse.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every call. Timeouts surface as errors.ErrTransport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("[exchange New] invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[exchange New] base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		logger:  log.With().Str("component", "exchange").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c, nil
}

// BaseURL is the resolved backend base URL, always ending in "/".
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Login exchanges credentials for tokens and the user's identity.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "exchange.Login"
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.New(errors.ErrInvalidInput, op, 0, fmt.Errorf("email and password are required"))
	}

	resp, err := c.call(ctx, op, outbound{
		method: http.MethodPost,
		path:   PathLogin,
		body:   loginRequest{Email: email, Password: password},
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusBadRequest || resp.status == http.StatusUnauthorized:
		return nil, errors.New(errors.ErrInvalidCredentials, op, resp.status, nil)
	case !resp.ok():
		return nil, errors.New(errors.ErrTransport, op, resp.status, nil)
	}

	var result LoginResult
	if err := resp.decode(op, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SignUp registers an owner account. It does not log the user in.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	const op = "exchange.SignUp"
	if err := req.Validate(); err != nil {
		return "", errors.New(errors.ErrInvalidInput, op, 0, err)
	}

	resp, err := c.call(ctx, op, outbound{
		method: http.MethodPost,
		path:   PathSignUp,
		body:   req,
	})
	if err != nil {
		return "", err
	}

	switch {
	case resp.status >= 400 && resp.status < 500:
		return "", errors.New(errors.ErrInvalidInput, op, resp.status, resp.backendError())
	case !resp.ok():
		return "", errors.New(errors.ErrTransport, op, resp.status, nil)
	}

	var out signUpResponse
	if err := resp.decode(op, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Refresh mints a new token pair. It must be given the current refresh token;
// a rejection means the session has ended and must not be retried.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	const op = "exchange.Refresh"
	if refreshToken == "" {
		return nil, errors.New(errors.ErrRefreshRejected, op, 0, fmt.Errorf("no refresh token"))
	}

	resp, err := c.call(ctx, op, outbound{
		method: http.MethodPost,
		path:   PathRefreshToken,
		body:   refreshRequest{RefreshToken: refreshToken},
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status >= 400 && resp.status < 500:
		return nil, errors.New(errors.ErrRefreshRejected, op, resp.status, nil)
	case !resp.ok():
		return nil, errors.New(errors.ErrTransport, op, resp.status, nil)
	}

	var tokens Tokens
	if err := resp.decode(op, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout is best-effort: failures are logged and swallowed, and nothing is
// sent when there is no access token.
func (c *Client) Logout(ctx context.Context, accessToken string) {
	const op = "exchange.Logout"
	if accessToken == "" {
		return
	}

	resp, err := c.call(ctx, op, outbound{
		method:      http.MethodPost,
		path:        PathLogout,
		bearerToken: accessToken,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("error while logging out")
		return
	}
	if !resp.ok() {
		c.logger.Warn().Int("status", resp.status).Msg("logout rejected by backend")
	}
}

// Status probes whether the backend considers the given tokens authenticated.
// Tokens travel as the backend's cookies, which is how cookie-session variants
// carry them.
func (c *Client) Status(ctx context.Context, tokens Tokens) (*Status, error) {
	const op = "exchange.Status"

	var cookies []*http.Cookie
	if tokens.AccessToken != "" {
		cookies = append(cookies, &http.Cookie{Name: CookieAccessToken, Value: tokens.AccessToken})
	}
	if tokens.RefreshToken != "" {
		cookies = append(cookies, &http.Cookie{Name: CookieRefreshToken, Value: tokens.RefreshToken})
	}

	resp, err := c.call(ctx, op, outbound{
		method:  http.MethodGet,
		path:    PathStatus,
		cookies: cookies,
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, errors.New(errors.ErrTransport, op, resp.status, nil)
	}

	var status Status
	if err := resp.decode(op, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Me resolves the identity behind an access token.
func (c *Client) Me(ctx context.Context, accessToken string) (*identity.Identity, error) {
	const op = "exchange.Me"
	if accessToken == "" {
		return nil, errors.New(errors.ErrNotAuthenticated, op, 0, nil)
	}

	resp, err := c.call(ctx, op, outbound{
		method:      http.MethodGet,
		path:        PathMe,
		bearerToken: accessToken,
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusUnauthorized:
		return nil, errors.New(errors.ErrNotAuthenticated, op, resp.status, nil)
	case !resp.ok():
		return nil, errors.New(errors.ErrTransport, op, resp.status, nil)
	}

	var id identity.Identity
	if err := resp.decode(op, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

type outbound struct {
	method      string
	path        string
	body        any
	bearerToken string
	cookies     []*http.Cookie
}

type inbound struct {
	status int
	body   []byte
}

func (r inbound) ok() bool {
	return r.status >= 200 && r.status < 300
}

type validator interface {
	Validate() error
}

// decode parses the body and checks it against the expected shape.
func (r inbound) decode(op string, out any) error {
	if err := json.Unmarshal(r.body, out); err != nil {
		return errors.New(errors.ErrValidation, op, r.status, err)
	}
	if v, ok := out.(validator); ok {
		if err := v.Validate(); err != nil {
			return errors.New(errors.ErrValidation, op, r.status, err)
		}
	}
	return nil
}

// backendError pulls a human readable message out of an error body.
func (r inbound) backendError() error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(r.body, &body) != nil {
		return nil
	}
	if body.Message != "" {
		return fmt.Errorf("%s", body.Message)
	}
	if body.Error != "" {
		return fmt.Errorf("%s", body.Error)
	}
	return nil
}

func (c *Client) call(ctx context.Context, op string, o outbound) (inbound, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if o.body != nil {
		b, err := json.Marshal(o.body)
		if err != nil {
			return inbound{}, errors.New(errors.ErrInvalidInput, op, 0, err)
		}
		body = bytes.NewReader(b)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: o.path})
	req, err := http.NewRequestWithContext(ctx, o.method, endpoint.String(), body)
	if err != nil {
		return inbound{}, errors.New(errors.ErrTransport, op, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if o.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearerToken)
	}
	for _, ck := range o.cookies {
		req.AddCookie(ck)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("op", op).Dur("dur", time.Since(start)).Msg("auth call failed")
		return inbound{}, errors.New(errors.ErrTransport, op, 0, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return inbound{}, errors.New(errors.ErrTransport, op, resp.StatusCode, err)
	}

	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("auth call")
	return inbound{status: resp.StatusCode, body: b}, nil
}
