package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	c, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8080", c.GetBackendURL())
	require.Equal(t, ":3000", c.GetPort())
	require.Equal(t, 10*time.Second, c.GetAuthTimeout())
	require.Equal(t, 3, c.GetMaxAuthRetries())
	require.Equal(t, 30*time.Second, c.GetSessionCacheTTL())
	require.Equal(t, 5*time.Minute, c.GetRefreshSkew())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenLifetime())
	require.Equal(t, 7*24*time.Hour, c.GetSelectionCookieMaxAge())
	require.False(t, c.IsProduction())
	require.Equal(t, config.TokenDecoderNone, c.GetTokenDecoder())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("NEXT_PUBLIC_MANAGEMENT_BACKEND_URL", "https://api.example.com/")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("REFRESH_SKEW", "2m")
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("TOKEN_DECODER", "JWKS")
	t.Setenv("TOKEN_ISSUER", "https://api.example.com")
	t.Setenv("JWKS_URL", "https://api.example.com/.well-known/jwks.json")

	c, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com", c.GetBackendURL())
	require.Equal(t, "s3cret", c.GetSessionSecret())
	require.Equal(t, 2*time.Minute, c.GetRefreshSkew())
	require.True(t, c.IsProduction())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://b.example.com"))
	require.Equal(t, config.TokenDecoderJWKS, c.GetTokenDecoder())
	require.Equal(t, "https://api.example.com", c.GetTokenIssuer())
	require.Equal(t, "https://api.example.com/.well-known/jwks.json", c.GetJWKSURL())
	require.Empty(t, c.GetTokenAudience())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	path := filepath.Join(t.TempDir(), "local.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  url: http://backend:9000
  max_auth_retries: 5
session:
  cache_ttl: 10s
tokens:
  decoder: unverified
`), 0o600))

	c, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://backend:9000", c.GetBackendURL())
	require.Equal(t, 5, c.GetMaxAuthRetries())
	require.Equal(t, 10*time.Second, c.GetSessionCacheTTL())
	require.Equal(t, 15*time.Minute, c.GetAccessTokenLifetime())
	require.Equal(t, config.TokenDecoderUnverified, c.GetTokenDecoder())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
