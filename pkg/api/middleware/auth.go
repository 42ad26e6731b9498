// Package middleware provides HTTP middleware for the coordinator API.
package middleware

import (
	"crypto/subtle"
	"net/http"
)

// AdminToken guards the worker protocol with a shared-secret header.
//
// Requests must carry the configured token in the "token" header. The
// comparison is constant-time. With no token configured the whole worker
// surface is disabled rather than open.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "admin endpoints disabled", http.StatusServiceUnavailable)
				return
			}

			presented := r.Header.Get("token")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
