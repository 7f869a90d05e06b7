package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenHeader is accepted alongside "Authorization: Bearer <token>".
const TokenHeader = "X-Control-Token"

func readToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get(TokenHeader))
}

func hasToken(given string, set []string) bool {
	if given == "" {
		return false
	}
	for _, t := range set {
		if subtle.ConstantTimeCompare([]byte(t), []byte(given)) == 1 {
			return true
		}
	}
	return false
}

// RequireToken guards control endpoints. With no tokens configured every
// request passes, which suits the default loopback-only bind address.
func RequireToken(tokens []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(tokens) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := readToken(r)
			if hasToken(given, tokens) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if given == "" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
		})
	}
}
