package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/server/loginsession"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyLoginSession stores the browser's *loginsession.Session
const ContextKeyLoginSession ContextKey = "login_session"

func loginSessionFrom(ctx context.Context) *loginsession.Session {
	ls, _ := ctx.Value(ContextKeyLoginSession).(*loginsession.Session)
	return ls
}

func isPublicPath(path string) bool {
	for _, prefix := range publicPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// LoadSessionMiddleware attaches the browser session, if any, to the request
// context and records the activity.
func (s *Server) LoadSessionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.loginSessionID(r)
		if !ok {
			next(w, r)
			return
		}
		ls, err := s.loginSessions.Get(id)
		if err != nil {
			// Swept or from a previous process
			s.clearLoginSessionCookie(w, r)
			next(w, r)
			return
		}
		_ = s.loginSessions.Touch(id, s.nowFunc())
		next(w, r.WithContext(context.WithValue(r.Context(), ContextKeyLoginSession, ls)))
	}
}

// RequireSession lets public paths through and sends everything else without
// a usable session to sign-in. Pages are redirected, API calls get a 401.
func (s *Server) RequireSession() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next(w, r)
				return
			}

			ls := loginSessionFrom(r.Context())
			if ls == nil {
				s.denyUnauthenticated(w, r)
				return
			}

			if _, err := ls.Manager.TokenSource(r.Context()).Token(); err != nil {
				s.logger.Debug().Err(err).Str("session_id", ls.ID).Msg("session no longer usable")
				s.dropLoginSession(w, r, ls)
				s.denyUnauthenticated(w, r)
				return
			}
			next(w, r)
		}
	}
}

// RequireRole admits users holding any of roles. It expects RequireSession to
// have run first.
func (s *Server) RequireRole(roles ...identity.Role) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			ls := loginSessionFrom(r.Context())
			if ls != nil && ls.Manager.HasRole(roles...) {
				next(w, r)
				return
			}
			if wantsJSON(r) {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			http.Redirect(w, r, RouteUnauthorized, http.StatusSeeOther)
		}
	}
}

func (s *Server) denyUnauthenticated(w http.ResponseWriter, r *http.Request) {
	target := signInURL(returnPath(r))
	if wantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated", SignInURL: target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// returnPath is where the user should land after signing in again. API calls
// return to the page that made them.
func returnPath(r *http.Request) string {
	if !strings.HasPrefix(r.URL.Path, RouteAPIProxy) {
		return r.URL.RequestURI()
	}
	ref, err := url.Parse(r.Referer())
	if err != nil || ref.Path == "" || (ref.Host != "" && ref.Host != r.Host) {
		return ""
	}
	return ref.RequestURI()
}

func (s *Server) dropLoginSession(w http.ResponseWriter, r *http.Request, ls *loginsession.Session) {
	_ = s.loginSessions.Delete(ls.ID)
	s.clearLoginSessionCookie(w, r)
}
