// Package fakebackend is an in-memory management backend used by tests.
package fakebackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-dashboard-auth/identity"
)

// Issuer is the iss claim on minted access tokens.
const Issuer = "http://fakebackend.test"

var signingKey = []byte("fake-backend-signing-key")

type account struct {
	password string
	user     identity.Identity
}

// Recorded is one request seen by the backend.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

// Backend mimics the auth endpoints and a couple of protected resources.
type Backend struct {
	mu            sync.Mutex
	accounts      map[string]account
	accessTokens  map[string]string // token -> email
	refreshTokens map[string]string // token -> email
	requests      []Recorded
	seq           int

	Logins    atomic.Int32
	Refreshes atomic.Int32
	Logouts   atomic.Int32
	Statuses  atomic.Int32
	Mes       atomic.Int32

	// RefreshDelay holds refresh responses, letting tests overlap callers.
	RefreshDelay time.Duration
	// RejectRefresh makes auth/refresh-token answer 401.
	RejectRefresh atomic.Bool
	// AlwaysUnauthorized makes every protected resource answer 401.
	AlwaysUnauthorized atomic.Bool
	// StatusNoRefresh makes auth/status report no refresh token.
	StatusNoRefresh atomic.Bool

	server *httptest.Server
}

func New() *Backend {
	b := &Backend{
		accounts:      make(map[string]account),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serveHTTP))
	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

func (b *Backend) Close() {
	b.server.Close()
}

// AddUser registers credentials for login.
func (b *Backend) AddUser(password string, user identity.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[user.Email] = account{password: password, user: user}
}

// Revoke makes a previously issued access token fail with 401.
func (b *Backend) Revoke(accessToken string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.accessTokens, accessToken)
}

// IssueTokens mints a pair for an existing user without going through login.
func (b *Backend) IssueTokens(email string) (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mintLocked(email)
}

// Requests returns every request whose path starts with prefix.
func (b *Backend) Requests(prefix string) []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Recorded
	for _, r := range b.requests {
		if strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) mintLocked(email string) (string, string) {
	b.seq++
	acct := b.accounts[email]
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   Issuer,
		"sub":   acct.user.ID,
		"name":  acct.user.Name,
		"email": acct.user.Email,
		"roles": acct.user.Roles,
		"iat":   now.Unix(),
		"exp":   now.Add(15 * time.Minute).Unix(),
		"jti":   fmt.Sprintf("at-%d", b.seq),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	refresh := fmt.Sprintf("rt-%d", b.seq)
	b.accessTokens[access] = email
	b.refreshTokens[refresh] = email
	return access, refresh
}

func (b *Backend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.requests = append(b.requests, Recorded{
		Method:        r.Method,
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		Body:          string(body),
	})
	b.mu.Unlock()

	switch {
	case r.URL.Path == "/auth/login" && r.Method == http.MethodPost:
		b.login(w, body)
	case r.URL.Path == "/auth/signup" && r.Method == http.MethodPost:
		b.signUp(w, body)
	case r.URL.Path == "/auth/refresh-token" && r.Method == http.MethodPost:
		b.refresh(w, body)
	case r.URL.Path == "/auth/logout" && r.Method == http.MethodPost:
		b.Logouts.Add(1)
		if token := bearer(r); token != "" {
			b.Revoke(token)
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/auth/status" && r.Method == http.MethodGet:
		b.status(w, r)
	case r.URL.Path == "/auth/me" && r.Method == http.MethodGet:
		b.me(w, r)
	default:
		b.resource(w, r, body)
	}
}

func (b *Backend) login(w http.ResponseWriter, body []byte) {
	b.Logins.Add(1)
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	b.mu.Lock()
	acct, ok := b.accounts[req.Email]
	if !ok || acct.password != req.Password {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	access, refresh := b.mintLocked(req.Email)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          acct.user,
	})
}

func (b *Backend) signUp(w http.ResponseWriter, body []byte) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.accounts[req.Email]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})
		return
	}
	b.accounts[req.Email] = account{
		password: req.Password,
		user: identity.Identity{
			ID:    fmt.Sprintf("user-%d", len(b.accounts)+1),
			Name:  req.Name,
			Email: req.Email,
			Roles: []identity.Role{identity.RoleOwner},
		},
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "account created"})
}

func (b *Backend) refresh(w http.ResponseWriter, body []byte) {
	b.Refreshes.Add(1)
	if b.RefreshDelay > 0 {
		time.Sleep(b.RefreshDelay)
	}
	if b.RejectRefresh.Load() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token revoked"})
		return
	}

	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.Unmarshal(body, &req)

	b.mu.Lock()
	email, ok := b.refreshTokens[req.RefreshToken]
	if !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}
	delete(b.refreshTokens, req.RefreshToken)
	access, refresh := b.mintLocked(email)
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	b.Statuses.Add(1)
	var authenticated, hasRefresh bool
	b.mu.Lock()
	if c, err := r.Cookie("access_token"); err == nil {
		_, authenticated = b.accessTokens[c.Value]
	}
	if c, err := r.Cookie("refresh_token"); err == nil {
		_, hasRefresh = b.refreshTokens[c.Value]
	}
	b.mu.Unlock()
	if b.StatusNoRefresh.Load() {
		hasRefresh = false
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"isAuthenticated": authenticated,
		"hasRefreshToken": hasRefresh,
	})
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	b.Mes.Add(1)
	email, ok := b.authorized(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	b.mu.Lock()
	user := b.accounts[email].user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, user)
}

// resource serves protected endpoints. GET /public/* is open to anyone;
// everything else echoes the method and body back to an authorized caller.
func (b *Backend) resource(w http.ResponseWriter, r *http.Request, body []byte) {
	if strings.HasPrefix(r.URL.Path, "/public/") {
		writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path})
		return
	}
	if b.AlwaysUnauthorized.Load() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	email, ok := b.authorized(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"method": r.Method,
		"path":   r.URL.Path,
		"email":  email,
		"body":   string(body),
	})
}

func (b *Backend) authorized(r *http.Request) (string, bool) {
	token := bearer(r)
	if token == "" {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.accessTokens[token]
	return email, ok
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
