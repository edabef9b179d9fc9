package server

import (
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/jrsteele09/go-dashboard-auth/internal/errors"
	"github.com/jrsteele09/go-dashboard-auth/pipeline"
)

// APIProxyHandler forwards /api/* to the management backend through the
// browser session's authenticated pipeline. Browser cookies never reach the
// backend; the pipeline attaches the bearer token instead.
func (s *Server) APIProxyHandler() http.HandlerFunc {
	target := s.backend.BaseURL()
	return func(w http.ResponseWriter, r *http.Request) {
		ls := loginSessionFrom(r.Context())
		if ls == nil {
			s.denyUnauthenticated(w, r)
			return
		}

		proxy := &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, strings.TrimSuffix(RouteAPIProxy, "/"))
				pr.Out.URL.RawPath = ""
				pr.SetURL(target)
				pr.SetXForwarded()
				pr.Out.Header.Del("Cookie")
				pr.Out.Header.Del("Authorization")
				if id := requestID(pr.In.Context()); id != "" {
					pr.Out.Header.Set(pipeline.HeaderRequestID, id)
				}
			},
			Transport: ls.Manager.Transport(),
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				var notAuth *errors.NotAuthenticatedError
				if errors.As(err, &notAuth) {
					s.dropLoginSession(w, r, ls)
					writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated", SignInURL: notAuth.SignInURL})
					return
				}
				s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("proxy request failed")
				writeJSON(w, http.StatusBadGateway, errorBody{Error: "backend unavailable"})
			},
		}

		ctx := pipeline.WithRedirectPath(r.Context(), returnPath(r))
		proxy.ServeHTTP(w, r.WithContext(ctx))
	}
}
