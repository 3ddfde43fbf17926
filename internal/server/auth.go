package server

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

const (
	// AuthHeader is the header name for bearer token authentication
	AuthHeader = "Authorization"

	// AuthScheme is the authentication scheme prefix
	AuthScheme = "Bearer "

	// DaemonTokenEnvVar is the environment variable for the daemon token
	DaemonTokenEnvVar = "CCD_DAEMON_TOKEN"
)

// withAuth wraps a handler with bearer token authentication.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		expectedToken := s.authToken()
		if expectedToken == "" {
			s.logger.Warn("Auth enabled but no token configured", nil)
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get(AuthHeader)
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing Authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, AuthScheme) {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Authorization scheme, expected Bearer")
			return
		}

		providedToken := strings.TrimPrefix(authHeader, AuthScheme)
		if subtle.ConstantTimeCompare([]byte(providedToken), []byte(expectedToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authToken returns the expected bearer token from the environment.
func (s *Server) authToken() string {
	return strings.TrimSpace(os.Getenv(DaemonTokenEnvVar))
}
