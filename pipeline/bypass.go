package pipeline

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/go-dashboard-auth/exchange"
)

// bypassPaths never carry a bearer token and never trigger a refresh.
var bypassPaths = map[string]struct{}{
	exchange.PathLogin:        {},
	exchange.PathSignUp:       {},
	"auth/sign-up":            {},
	exchange.PathRefreshToken: {},
	exchange.PathRefresh:      {},
	exchange.PathStatus:       {},
	exchange.PathLogout:       {},
}

// Bypassed reports whether u addresses one of the backend's auth endpoints.
// Paths are matched relative to base; anything outside base is not bypassed.
func Bypassed(base, u *url.URL) bool {
	if u.Host != "" && !strings.EqualFold(u.Host, base.Host) {
		return false
	}
	prefix := base.Path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if !strings.HasPrefix(u.Path, prefix) {
		return false
	}
	rel := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
	_, ok := bypassPaths[rel]
	return ok
}
