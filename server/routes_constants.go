package server

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	// Auth routes
	RouteSignIn  = "/sign-in"
	RouteSignUp  = "/sign-up"
	RouteSignOut = "/sign-out"

	// API routes
	RouteAPISession = "/api/session"
	RouteAPIProxy   = "/api/"

	// Dashboard pages
	RouteIndex        = "/"
	RouteBusinesses   = "/businesses"
	RouteBusiness     = "/business/"
	RouteUnauthorized = "/unauthorized"
	RouteHealth       = "/healthz"
)

// publicPrefixes never require a signed-in session.
var publicPrefixes = []string{
	RouteSignIn,
	RouteSignUp,
	RouteUnauthorized,
	RouteHealth,
	RouteAPISession,
	"/_next",
	"/favicon.ico",
}
