package session

import (
	"time"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"golang.org/x/oauth2"
)

// Session is the resolved authentication state of one signed-in user.
//
// Whenever AccessToken is set, AccessTokenExpiresAt is set too. A session past
// its expiry is stale and must be refreshed before it authorizes anything.
type Session struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	Identity             *identity.Identity
}

// New builds the session created by a successful login.
func New(tokens exchange.Tokens, user *identity.Identity, expiresAt time.Time) *Session {
	return &Session{
		AccessToken:          tokens.AccessToken,
		RefreshToken:         tokens.RefreshToken,
		AccessTokenExpiresAt: expiresAt,
		Identity:             user.Clone(),
	}
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Identity = s.Identity.Clone()
	return &c
}

func (s *Session) HasAccessToken() bool {
	return s != nil && s.AccessToken != ""
}

func (s *Session) HasRefreshToken() bool {
	return s != nil && s.RefreshToken != ""
}

// Stale reports whether the access token is missing or past its expiry.
func (s *Session) Stale(now time.Time) bool {
	if !s.HasAccessToken() || s.AccessTokenExpiresAt.IsZero() {
		return true
	}
	return !now.Before(s.AccessTokenExpiresAt)
}

// WithoutTokens drops every credential but keeps the identity until an
// explicit check confirms the user is signed out.
func (s *Session) WithoutTokens() *Session {
	c := s.Clone()
	if c == nil {
		return nil
	}
	c.AccessToken = ""
	c.RefreshToken = ""
	c.AccessTokenExpiresAt = time.Time{}
	return c
}

// Tokens returns the pair in the exchange client's shape.
func (s *Session) Tokens() exchange.Tokens {
	if s == nil {
		return exchange.Tokens{}
	}
	return exchange.Tokens{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// Token adapts the session for golang.org/x/oauth2 consumers.
func (s *Session) Token() *oauth2.Token {
	if !s.HasAccessToken() {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.AccessTokenExpiresAt,
	}
}
