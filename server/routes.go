package server

import "github.com/jrsteele09/go-dashboard-auth/identity"

func (s *Server) initRoutes() {
	requireSession := s.RequireSession()

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// AUTH
	s.RegisterRouteHandler("GET "+RouteSignIn, ChainMiddleware(s.SignInPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignIn, ChainMiddleware(s.SignInHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSignUp, ChainMiddleware(s.SignUpPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignUp, ChainMiddleware(s.SignUpHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignOut, ChainMiddleware(s.SignOutHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteUnauthorized, ChainMiddleware(s.UnauthorizedHandler(), s.PageMiddleware()...))

	// API
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler(RouteAPIProxy, ChainMiddleware(s.APIProxyHandler(), s.APIMiddleware(requireSession)...))

	// DASHBOARD
	s.RegisterRouteHandler("GET "+RouteIndex+"{$}", ChainMiddleware(s.DashboardHandler(), s.PageMiddleware(requireSession)...))
	s.RegisterRouteHandler("GET "+RouteBusiness, ChainMiddleware(s.DashboardHandler(), s.PageMiddleware(requireSession)...))
	s.RegisterRouteHandler("GET "+RouteBusinesses, ChainMiddleware(s.DashboardHandler(),
		s.PageMiddleware(requireSession, s.RequireRole(identity.RoleOwner, identity.RoleAdmin))...))
}
