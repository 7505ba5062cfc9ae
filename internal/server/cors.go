package server

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// newCORS builds the cross-origin policy for the configured origins. "*"
// allows any origin; an empty list allows none.
func newCORS(origins []string) *cors.Cors {
	allowed := make([]string, 0, len(origins))
	wildcard := false
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			wildcard = true
		}
		allowed = append(allowed, o)
	}

	opts := cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: !wildcard,
		MaxAge:           600,
	}
	if len(allowed) == 0 {
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return s.cors.Handler(next)
}

// OriginChecker returns a websocket origin check that applies the same
// policy as the CORS middleware. Requests without an Origin header are
// non-browser clients and are allowed.
func OriginChecker(origins []string) func(r *http.Request) bool {
	c := newCORS(origins)
	return func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || c.OriginAllowed(r)
	}
}
