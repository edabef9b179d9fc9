package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// loginSessionCookie carries the sealed browser session id.
const loginSessionCookie = "dashboard_session"

func (s *Server) setLoginSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) error {
	sealed, err := s.sealer.Seal(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     loginSessionCookie,
		Value:    sealed,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.GetSessionIdleTimeout().Seconds()),
	})
	return nil
}

func (s *Server) clearLoginSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     loginSessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// loginSessionID opens the session cookie. Tampered or foreign cookies read as absent.
func (s *Server) loginSessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(loginSessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	id, err := s.sealer.Open(c.Value)
	if err != nil {
		s.logger.Debug().Err(err).Msg("ignoring unreadable session cookie")
		return "", false
	}
	return id, true
}

// signInURL is the sign-in page that returns to redirect afterwards.
func signInURL(redirect string) string {
	if redirect == "" || redirect == RouteIndex {
		return RouteSignIn
	}
	return RouteSignIn + "?" + url.Values{"redirect": {redirect}}.Encode()
}

// safeRedirect only allows local absolute paths as post sign-in targets.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return RouteIndex
	}
	return target
}

// redirectWithError sends the browser back to path with an error message,
// keeping any extra query values.
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string, extra url.Values) {
	q := url.Values{}
	for k, v := range extra {
		if len(v) > 0 && v[0] != "" {
			q[k] = v
		}
	}
	q.Set("error", errorMsg)
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusSeeOther)
}

// wantsJSON is true for fetch/XHR callers rather than form posts.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	SignInURL string `json:"signInUrl,omitempty"`
}
