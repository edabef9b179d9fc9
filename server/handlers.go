package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/identity"
	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/jrsteele09/go-dashboard-auth/server/loginsession"
	"github.com/jrsteele09/go-dashboard-auth/server/selection"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Redirect string `json:"redirect"`
}

type signUpForm struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}

// sessionResponse is what the dashboard reads to render auth-aware UI.
type sessionResponse struct {
	IsAuthenticated bool                `json:"isAuthenticated"`
	User            *identity.Identity  `json:"user,omitempty"`
	TokenState      string              `json:"tokenState,omitempty"`
	Selection       selection.Selection `json:"selection"`
}

// decodeForm reads a JSON body or an HTML form into dst.
func decodeForm(w http.ResponseWriter, r *http.Request, dst any, fields map[string]*string) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	for name, field := range fields {
		*field = strings.TrimSpace(r.PostFormValue(name))
	}
	return nil
}

func (s *Server) SignInPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.renderPage(w, http.StatusOK, "sign-in", pageData{
			Title:    "Sign in",
			Error:    q.Get("error"),
			Message:  q.Get("message"),
			Redirect: safeRedirect(q.Get("redirect")),
			Email:    q.Get("email"),
		})
	}
}

// SignInHandler exchanges credentials with the backend and binds the browser
// to a fresh session.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decodeForm(w, r, &req, map[string]*string{
			"email":    &req.Email,
			"password": &req.Password,
			"redirect": &req.Redirect,
		}); err != nil {
			s.signInFailed(w, r, req, http.StatusBadRequest, "Invalid form data")
			return
		}
		redirect := safeRedirect(req.Redirect)

		if req.Email == "" || req.Password == "" {
			s.signInFailed(w, r, req, http.StatusBadRequest, "Email and password are required")
			return
		}

		m := s.newManager()
		user, err := m.Login(r.Context(), req.Email, req.Password)
		switch {
		case errors.Is(err, errors.ErrInvalidCredentials):
			s.signInFailed(w, r, req, http.StatusUnauthorized, "Invalid email or password")
			return
		case errors.Is(err, errors.ErrInvalidInput):
			s.signInFailed(w, r, req, http.StatusBadRequest, userMessage(err))
			return
		case err != nil:
			s.logger.Error().Err(err).Msg("sign-in failed")
			s.signInFailed(w, r, req, http.StatusBadGateway, "Sign-in is unavailable, please try again")
			return
		}

		if prev := loginSessionFrom(r.Context()); prev != nil {
			_ = s.loginSessions.Delete(prev.ID)
			prev.Manager.Logout(context.WithoutCancel(r.Context()))
		}

		now := s.nowFunc()
		ls := &loginsession.Session{ID: uuid.NewString(), Manager: m, CreatedAt: now, LastSeen: now}
		if err := s.loginSessions.Upsert(ls.ID, ls); err != nil {
			m.Logout(r.Context())
			s.signInFailed(w, r, req, http.StatusInternalServerError, "Failed to create session")
			return
		}
		if err := s.setLoginSessionCookie(w, r, ls.ID); err != nil {
			_ = s.loginSessions.Delete(ls.ID)
			m.Logout(r.Context())
			s.signInFailed(w, r, req, http.StatusInternalServerError, "Failed to create session")
			return
		}

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, struct {
				User     *identity.Identity `json:"user"`
				Redirect string             `json:"redirect"`
			}{user, redirect})
			return
		}
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	}
}

func (s *Server) signInFailed(w http.ResponseWriter, r *http.Request, req signInRequest, status int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, status, errorBody{Error: msg})
		return
	}
	redirectWithError(w, r, RouteSignIn, msg, url.Values{
		"email":    {req.Email},
		"redirect": {req.Redirect},
	})
}

func (s *Server) SignUpPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.renderPage(w, http.StatusOK, "sign-up", pageData{
			Title: "Sign up",
			Error: q.Get("error"),
			Name:  q.Get("name"),
			Email: q.Get("email"),
		})
	}
}

// SignUpHandler registers an owner account. The user signs in afterwards.
func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var form signUpForm
		if err := decodeForm(w, r, &form, map[string]*string{
			"name":                 &form.Name,
			"email":                &form.Email,
			"password":             &form.Password,
			"passwordConfirmation": &form.PasswordConfirmation,
		}); err != nil {
			s.signUpFailed(w, r, form, http.StatusBadRequest, "Invalid form data")
			return
		}

		msg, err := s.backend.SignUp(r.Context(), exchange.SignUpRequest{
			Name:                 form.Name,
			Email:                form.Email,
			Password:             form.Password,
			PasswordConfirmation: form.PasswordConfirmation,
		})
		switch {
		case errors.Is(err, errors.ErrInvalidInput):
			s.signUpFailed(w, r, form, http.StatusBadRequest, userMessage(err))
			return
		case err != nil:
			s.logger.Error().Err(err).Msg("sign-up failed")
			s.signUpFailed(w, r, form, http.StatusBadGateway, "Sign-up is unavailable, please try again")
			return
		}

		if msg == "" {
			msg = "Account created, please sign in"
		}
		if wantsJSON(r) {
			writeJSON(w, http.StatusCreated, struct {
				Message string `json:"message"`
			}{msg})
			return
		}
		q := url.Values{"message": {msg}, "email": {form.Email}}
		http.Redirect(w, r, RouteSignIn+"?"+q.Encode(), http.StatusSeeOther)
	}
}

func (s *Server) signUpFailed(w http.ResponseWriter, r *http.Request, form signUpForm, status int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, status, errorBody{Error: msg})
		return
	}
	redirectWithError(w, r, RouteSignUp, msg, url.Values{
		"name":  {form.Name},
		"email": {form.Email},
	})
}

// SignOutHandler ends the browser session locally even if the backend
// cannot be reached.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ls := loginSessionFrom(r.Context()); ls != nil {
			ls.Manager.Logout(r.Context())
			s.dropLoginSession(w, r, ls)
		} else {
			s.clearLoginSessionCookie(w, r)
		}
		selection.Forget(w, s.secureCookies(r))

		if wantsJSON(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Redirect(w, r, RouteSignIn, http.StatusSeeOther)
	}
}

// SessionHandler reports who is signed in. It never fails for anonymous callers.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := sessionResponse{Selection: selection.Resolve(r)}
		if ls := loginSessionFrom(r.Context()); ls != nil {
			if _, err := ls.Manager.Session(r.Context()); err != nil {
				s.logger.Warn().Err(err).Str("session_id", ls.ID).Msg("session revalidation failed")
			}
			resp.IsAuthenticated = ls.Manager.IsAuthenticated()
			resp.User = ls.Manager.User()
			resp.TokenState = ls.Manager.State().String()
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}

// DashboardHandler serves the page context for guarded dashboard routes and
// remembers the business and restaurant named in the path.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		selection.Remember(w, r, s.config.GetSelectionCookieMaxAge(), s.secureCookies(r))
		resp := sessionResponse{Selection: selection.Resolve(r)}
		if ls := loginSessionFrom(r.Context()); ls != nil {
			resp.IsAuthenticated = ls.Manager.IsAuthenticated()
			resp.User = ls.Manager.User()
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) UnauthorizedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.renderPage(w, http.StatusForbidden, "unauthorized", pageData{Title: "Not authorized"})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
		}{"ok"})
	}
}

// userMessage is the cause of a classified error, suitable for display.
func userMessage(err error) string {
	var e *errors.Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
