package exchange_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/exchange/fakebackend"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "owner@example.com"
	testPassword = "Passw0rd!"
)

func setupClient(t *testing.T) (*exchange.Client, *fakebackend.Backend) {
	t.Helper()

	backend := fakebackend.New()
	t.Cleanup(backend.Close)
	backend.AddUser(testPassword, identity.Identity{
		ID:    "user-1",
		Name:  "John Owner",
		Email: testEmail,
		Roles: []identity.Role{identity.RoleOwner},
	})

	c, err := exchange.New(backend.URL())
	require.NoError(t, err)
	return c, backend
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := exchange.New("localhost")
	require.Error(t, err)
}

func TestClient_Login(t *testing.T) {
	c, backend := setupClient(t)
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		res, err := c.Login(ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.NotEmpty(t, res.AccessToken)
		require.NotEmpty(t, res.RefreshToken)
		require.Equal(t, "user-1", res.User.ID)
		require.True(t, res.User.HasRole(identity.RoleOwner))
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := c.Login(ctx, testEmail, "wrong")
		require.True(t, errors.Is(err, errors.ErrInvalidCredentials))
	})

	t.Run("empty fields never reach the backend", func(t *testing.T) {
		before := backend.Logins.Load()
		_, err := c.Login(ctx, "", testPassword)
		require.True(t, errors.Is(err, errors.ErrInvalidInput))
		_, err = c.Login(ctx, testEmail, "")
		require.True(t, errors.Is(err, errors.ErrInvalidInput))
		require.Equal(t, before, backend.Logins.Load())
	})

	t.Run("login never carries a bearer token", func(t *testing.T) {
		for _, r := range backend.Requests("/auth/login") {
			require.Empty(t, r.Authorization)
		}
	})
}

func TestClient_LoginServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := exchange.New(srv.URL)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), testEmail, testPassword)
	require.True(t, errors.Is(err, errors.ErrTransport))

	var typed *errors.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, http.StatusBadGateway, typed.Status)
}

func TestClient_MalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a","user":{"id":"1","email":"x@example.com","roles":["owner"]}}`))
	}))
	defer srv.Close()

	c, err := exchange.New(srv.URL)
	require.NoError(t, err)

	_, err = c.Login(context.Background(), testEmail, testPassword)
	require.True(t, errors.Is(err, errors.ErrValidation))
	require.False(t, errors.Is(err, errors.ErrInvalidCredentials))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := exchange.New(srv.URL, exchange.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Refresh(context.Background(), "rt-1")
	require.True(t, errors.Is(err, errors.ErrTransport))
	require.False(t, errors.Is(err, errors.ErrRefreshRejected))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_Refresh(t *testing.T) {
	c, backend := setupClient(t)
	ctx := context.Background()

	_, refresh := backend.IssueTokens(testEmail)

	tokens, err := c.Refresh(ctx, refresh)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEqual(t, refresh, tokens.RefreshToken)

	t.Run("rotated token is rejected", func(t *testing.T) {
		_, err := c.Refresh(ctx, refresh)
		require.True(t, errors.Is(err, errors.ErrRefreshRejected))
	})

	t.Run("empty token", func(t *testing.T) {
		before := backend.Refreshes.Load()
		_, err := c.Refresh(ctx, "")
		require.True(t, errors.Is(err, errors.ErrRefreshRejected))
		require.Equal(t, before, backend.Refreshes.Load())
	})
}

func TestClient_Logout(t *testing.T) {
	c, backend := setupClient(t)
	ctx := context.Background()

	t.Run("no access token sends nothing", func(t *testing.T) {
		c.Logout(ctx, "")
		require.Zero(t, backend.Logouts.Load())
	})

	t.Run("sends bearer token", func(t *testing.T) {
		access, _ := backend.IssueTokens(testEmail)
		c.Logout(ctx, access)
		require.EqualValues(t, 1, backend.Logouts.Load())

		reqs := backend.Requests("/auth/logout")
		require.Len(t, reqs, 1)
		require.Equal(t, "Bearer "+access, reqs[0].Authorization)
	})

	t.Run("unreachable backend is swallowed", func(t *testing.T) {
		dead, err := exchange.New("http://127.0.0.1:1", exchange.WithTimeout(100*time.Millisecond))
		require.NoError(t, err)
		require.NotPanics(t, func() { dead.Logout(ctx, "token") })
	})
}

func TestClient_StatusAndMe(t *testing.T) {
	c, backend := setupClient(t)
	ctx := context.Background()
	access, refresh := backend.IssueTokens(testEmail)

	status, err := c.Status(ctx, exchange.Tokens{AccessToken: access, RefreshToken: refresh})
	require.NoError(t, err)
	require.True(t, status.IsAuthenticated)
	require.True(t, status.HasRefreshToken)

	backend.Revoke(access)
	status, err = c.Status(ctx, exchange.Tokens{AccessToken: access, RefreshToken: refresh})
	require.NoError(t, err)
	require.False(t, status.IsAuthenticated)
	require.True(t, status.HasRefreshToken)

	_, err = c.Me(ctx, access)
	require.True(t, errors.Is(err, errors.ErrNotAuthenticated))

	fresh, _ := backend.IssueTokens(testEmail)
	me, err := c.Me(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, testEmail, me.Email)
}

func TestClient_SignUp(t *testing.T) {
	c, _ := setupClient(t)
	ctx := context.Background()

	req := exchange.SignUpRequest{
		Name:                 "Jane",
		Email:                "jane@example.com",
		Password:             "Str0ng!pass",
		PasswordConfirmation: "Str0ng!pass",
	}
	msg, err := c.SignUp(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "account created", msg)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := c.SignUp(ctx, req)
		require.True(t, errors.Is(err, errors.ErrInvalidInput))
		require.Contains(t, err.Error(), "email already registered")
	})

	t.Run("weak password", func(t *testing.T) {
		weak := req
		weak.Email = "weak@example.com"
		weak.Password = "password"
		weak.PasswordConfirmation = "password"
		_, err := c.SignUp(ctx, weak)
		require.True(t, errors.Is(err, errors.ErrInvalidInput))
		require.Contains(t, err.Error(), "uppercase")
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		bad := req
		bad.Email = "other@example.com"
		bad.PasswordConfirmation = "Different!1"
		_, err := c.SignUp(ctx, bad)
		require.Contains(t, err.Error(), "passwords do not match")
	})
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, exchange.ValidatePasswordStrength("Abcdefg!"))
	require.ErrorContains(t, exchange.ValidatePasswordStrength("Ab!"), "8 characters")
	require.ErrorContains(t, exchange.ValidatePasswordStrength("abcdefg!"), "uppercase")
	require.ErrorContains(t, exchange.ValidatePasswordStrength("ABCDEFG!"), "lowercase")
	require.ErrorContains(t, exchange.ValidatePasswordStrength("Abcdefg1"), "special")
}
