package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/stretchr/testify/require"
)

const testIssuer = "http://backend.test"

func signedToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func ownerClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testIssuer,
		"sub":   "user-1",
		"name":  "John Owner",
		"email": "owner@example.com",
		"roles": []string{"owner", "staff"},
		"iat":   now.Unix(),
		"exp":   now.Add(15 * time.Minute).Unix(),
	}
}

func TestUnverifiedDecoder(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	raw := signedToken(t, jwt.SigningMethodHS256, []byte("backend-secret"), ownerClaims(now))

	claims, err := identity.UnverifiedDecoder{}.Decode(context.Background(), raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Identity.ID)
	require.Equal(t, "owner@example.com", claims.Identity.Email)
	require.True(t, claims.Identity.HasRole(identity.RoleStaff))
	require.Equal(t, now.Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
	require.Equal(t, now.Unix(), claims.IssuedAt.Unix())
}

func TestUnverifiedDecoder_Rejects(t *testing.T) {
	t.Run("not a jwt", func(t *testing.T) {
		_, err := identity.UnverifiedDecoder{}.Decode(context.Background(), "opaque-token")
		require.Error(t, err)
	})

	t.Run("unknown role", func(t *testing.T) {
		c := ownerClaims(time.Now())
		c["roles"] = []string{"root"}
		raw := signedToken(t, jwt.SigningMethodHS256, []byte("k"), c)
		_, err := identity.UnverifiedDecoder{}.Decode(context.Background(), raw)
		require.Error(t, err)
	})
}

func TestStaticKeyDecoder(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	decoder := identity.NewStaticKeyDecoder(testIssuer, "", &key.PublicKey)

	t.Run("valid signature", func(t *testing.T) {
		raw := signedToken(t, jwt.SigningMethodRS256, key, ownerClaims(time.Now()))
		claims, err := decoder.Decode(context.Background(), raw)
		require.NoError(t, err)
		require.Equal(t, "John Owner", claims.Identity.Name)
		require.True(t, claims.Identity.HasRole(identity.RoleOwner))
	})

	t.Run("wrong key", func(t *testing.T) {
		raw := signedToken(t, jwt.SigningMethodRS256, other, ownerClaims(time.Now()))
		_, err := decoder.Decode(context.Background(), raw)
		require.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := ownerClaims(time.Now())
		c["iss"] = "http://elsewhere.test"
		raw := signedToken(t, jwt.SigningMethodRS256, key, c)
		_, err := decoder.Decode(context.Background(), raw)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		raw := signedToken(t, jwt.SigningMethodRS256, key, ownerClaims(time.Now().Add(-time.Hour)))
		_, err := decoder.Decode(context.Background(), raw)
		require.Error(t, err)
	})
}
