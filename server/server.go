// Package server is the dashboard gateway: it signs browsers in against the
// management backend, keeps one auth.Manager per browser session and proxies
// /api calls through that session's authenticated pipeline.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-dashboard-auth/auth"
	"github.com/jrsteele09/go-dashboard-auth/exchange"
	"github.com/jrsteele09/go-dashboard-auth/internal/config"
	"github.com/jrsteele09/go-dashboard-auth/server/loginsession"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Server struct {
	env           string // Environment (e.g., "DEV", "production")
	mux           *http.ServeMux
	routes        []string
	config        config.Config
	backend       *exchange.Client
	loginSessions loginsession.Repo
	sealer        *cookieSealer
	managerOpts   []auth.ManagerOption
	nowFunc       func() time.Time
	logger        zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithNowFunc sets the clock used for session bookkeeping (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = nowFunc
	}
}

// WithManagerOptions appends options to every per-browser auth.Manager.
func WithManagerOptions(opts ...auth.ManagerOption) Option {
	return func(s *Server) {
		s.managerOpts = append(s.managerOpts, opts...)
	}
}

func New(cfg config.Config, backend *exchange.Client, loginSessionRepo loginsession.Repo, options ...Option) (*Server, error) {
	sealer, err := newCookieSealer(cfg.GetSessionSecret())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create cookie sealer: %w", err)
	}

	managerOpts, err := auth.ConfigOptions(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("[Server New] invalid auth configuration: %w", err)
	}

	s := &Server{
		env:           cfg.GetEnv(),
		mux:           http.NewServeMux(),
		config:        cfg,
		backend:       backend,
		loginSessions: loginSessionRepo,
		sealer:        sealer,
		managerOpts:   managerOpts,
		nowFunc:       time.Now,
		logger:        log.With().Str("component", "server").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	s.logger.Info().
		Str("token_decoder", cfg.GetTokenDecoder()).
		Stringer("cors_origins", cfg.GetAllowedOrigins()).
		Msg("gateway configured")

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// newManager builds an empty session manager for one browser.
func (s *Server) newManager() *auth.Manager {
	opts := append([]auth.ManagerOption{auth.WithNowTime(s.nowFunc)}, s.managerOpts...)
	return auth.NewManager(s.backend, opts...)
}

// SweepIdleSessions signs out every browser session not seen since the idle
// timeout and returns how many were removed.
func (s *Server) SweepIdleSessions(ctx context.Context) int {
	cutoff := s.nowFunc().Add(-s.config.GetSessionIdleTimeout())
	idle := s.loginSessions.DeleteIdle(cutoff)
	for _, ls := range idle {
		ls.Manager.Logout(ctx)
	}
	if len(idle) > 0 {
		s.logger.Info().Int("sessions", len(idle)).Msg("swept idle sessions")
	}
	return len(idle)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdleSessions(ctx)
		}
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			s.logger.Debug().Str("method", colourMethod(parts[0])).Msg(parts[1])
		} else {
			s.logger.Debug().Str("method", "ANY").Msg(parts[0])
		}
	}
}

// secureCookies is true when cookies must only travel over HTTPS.
func (s *Server) secureCookies(r *http.Request) bool {
	return s.config.IsProduction() || getScheme(r) == "https"
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
