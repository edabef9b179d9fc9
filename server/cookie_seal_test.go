package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCookieSealer(t *testing.T) {
	_, err := newCookieSealer("")
	require.Error(t, err)

	sealer, err := newCookieSealer("secret-a")
	require.NoError(t, err)

	sealed, err := sealer.Seal("session-123")
	require.NoError(t, err)
	require.NotContains(t, sealed, "session-123")

	again, err := sealer.Seal("session-123")
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "every seal uses a fresh nonce")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "session-123", opened)

	t.Run("other key", func(t *testing.T) {
		other, err := newCookieSealer("secret-b")
		require.NoError(t, err)
		_, err = other.Open(sealed)
		require.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		b := []byte(sealed)
		if b[len(b)-2] == 'A' {
			b[len(b)-2] = 'B'
		} else {
			b[len(b)-2] = 'A'
		}
		_, err := sealer.Open(string(b))
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		for _, v := range []string{"", "short", "!!!not base64!!!"} {
			_, err := sealer.Open(v)
			require.Error(t, err, v)
		}
	})
}

func TestSafeRedirect(t *testing.T) {
	tests := map[string]string{
		"":                          "/",
		"/business/1":               "/business/1",
		"/menus?tab=2":              "/menus?tab=2",
		"//evil.example.com":        "/",
		"/\\evil.example.com":       "/",
		"https://evil.example.com/": "/",
		"business/1":                "/",
	}
	for in, want := range tests {
		require.Equal(t, want, safeRedirect(in), in)
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, p := range []string{"/sign-in", "/sign-up", "/_next/static/app.js", "/favicon.ico", "/api/session", "/healthz"} {
		require.True(t, isPublicPath(p), p)
	}
	for _, p := range []string{"/", "/sign-inx", "/business/1", "/api/orders", "/sign-out"} {
		require.False(t, isPublicPath(p), p)
	}
}

func TestSignInURL(t *testing.T) {
	require.Equal(t, "/sign-in", signInURL(""))
	require.Equal(t, "/sign-in", signInURL("/"))
	require.Equal(t, "/sign-in?redirect=%2Fbusiness%2F1%3Ftab%3D2", signInURL("/business/1?tab=2"))
}
