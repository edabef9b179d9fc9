package config

import "strings"

const (
	TokenDecoderNone       = "none"
	TokenDecoderUnverified = "unverified"
	TokenDecoderJWKS       = "jwks"
)

type TokenConfig interface {
	GetTokenDecoder() string
	GetTokenIssuer() string
	GetJWKSURL() string
	GetTokenAudience() string
}

// Tokens selects how refreshed access tokens are read for identity.
// "none" keeps the identity from sign-in and revalidation, "unverified" reads
// the claims as received from the backend and "jwks" verifies them first.
type Tokens struct {
	Decoder  string `yaml:"decoder" env:"TOKEN_DECODER" env-default:"none"`
	Issuer   string `yaml:"issuer" env:"TOKEN_ISSUER"`
	JWKSURL  string `yaml:"jwks_url" env:"JWKS_URL"`
	Audience string `yaml:"audience" env:"TOKEN_AUDIENCE"`
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetTokenDecoder() string {
	d := strings.ToLower(strings.TrimSpace(t.Decoder))
	if d == "" {
		return TokenDecoderNone
	}
	return d
}

func (t Tokens) GetTokenIssuer() string {
	return t.Issuer
}

func (t Tokens) GetJWKSURL() string {
	return t.JWKSURL
}

func (t Tokens) GetTokenAudience() string {
	return t.Audience
}
