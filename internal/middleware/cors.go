// Package middleware provides HTTP middleware for the reveal server.
package middleware

import (
	"net/http"
	"strings"
)

// CORS returns middleware that handles CORS headers for the configured
// allowed origins. Entries may be exact origins ("https://app.example.com")
// or patterns with a single leading "*." wildcard segment
// ("*.example.com"), matched the same way regardless of whether the
// request carries credentials — see spec's origin-pattern Open Question:
// the bidirectional transport's fallback mode needs all configured origins
// honored by pattern, not just exact string matches.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && originAllowed(origin, allowedOrigins)

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Vary", "Origin")
				// Only allow credentials for explicit, non-wildcard origins.
				// Setting Allow-Credentials with a wildcard-echoed origin enables CSRF.
				if !matchesWildcard(origin, allowedOrigins) {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		if suffix, ok := strings.CutPrefix(p, "*."); ok {
			if strings.HasSuffix(origin, "."+suffix) || strings.HasSuffix(origin, "//"+suffix) {
				return true
			}
		}
	}
	return false
}

func matchesWildcard(origin string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if suffix, ok := strings.CutPrefix(p, "*."); ok {
			if strings.HasSuffix(origin, "."+suffix) || strings.HasSuffix(origin, "//"+suffix) {
				return true
			}
		}
	}
	return false
}
