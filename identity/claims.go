package identity

import (
	"context"
	"crypto"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is what a server-issued access token says about its subject.
type Claims struct {
	Identity  *Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Decoder turns a raw access token into Claims. Implementations must only
// read server-issued tokens; client-supplied identity is never trusted.
type Decoder interface {
	Decode(ctx context.Context, rawToken string) (*Claims, error)
}

// accessTokenClaims mirrors the backend's payload: sub, name, email, roles, iat, exp.
type accessTokenClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
	Roles []Role `json:"roles"`
}

func (c *accessTokenClaims) toClaims() (*Claims, error) {
	id := &Identity{
		ID:    c.Subject,
		Name:  c.Name,
		Email: c.Email,
		Roles: c.Roles,
	}
	if err := id.Validate(); err != nil {
		return nil, fmt.Errorf("token claims: %w", err)
	}
	claims := &Claims{Identity: id}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims, nil
}

// UnverifiedDecoder reads the claims of a token received directly from the
// backend over the exchange client. The signature is not checked.
type UnverifiedDecoder struct{}

var _ Decoder = UnverifiedDecoder{}

func (UnverifiedDecoder) Decode(_ context.Context, rawToken string) (*Claims, error) {
	var c accessTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, &c); err != nil {
		return nil, fmt.Errorf("UnverifiedDecoder.Decode: %w", err)
	}
	return c.toClaims()
}

// OIDCDecoder verifies the token signature, issuer and expiry before reading claims.
type OIDCDecoder struct {
	verifier *oidc.IDTokenVerifier
}

var _ Decoder = (*OIDCDecoder)(nil)

// NewOIDCDecoder verifies against keySet. An empty audience skips the aud check.
func NewOIDCDecoder(issuer string, keySet oidc.KeySet, audience string, now func() time.Time) *OIDCDecoder {
	cfg := &oidc.Config{
		ClientID:          audience,
		SkipClientIDCheck: audience == "",
		Now:               now,
	}
	return &OIDCDecoder{verifier: oidc.NewVerifier(issuer, keySet, cfg)}
}

// NewStaticKeyDecoder verifies against fixed public keys.
func NewStaticKeyDecoder(issuer string, audience string, keys ...crypto.PublicKey) *OIDCDecoder {
	return NewOIDCDecoder(issuer, &oidc.StaticKeySet{PublicKeys: keys}, audience, nil)
}

// NewRemoteKeyDecoder verifies against the backend's JWKS document.
func NewRemoteKeyDecoder(ctx context.Context, issuer, jwksURL, audience string) *OIDCDecoder {
	return NewOIDCDecoder(issuer, oidc.NewRemoteKeySet(ctx, jwksURL), audience, nil)
}

func (d *OIDCDecoder) Decode(ctx context.Context, rawToken string) (*Claims, error) {
	tok, err := d.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("OIDCDecoder.Decode: %w", err)
	}

	var c accessTokenClaims
	if err := tok.Claims(&c); err != nil {
		return nil, fmt.Errorf("OIDCDecoder.Decode claims: %w", err)
	}
	return c.toClaims()
}
