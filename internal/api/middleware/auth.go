package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Rrens/devin-relay/internal/api/response"
)

// AdminAuth guards operator endpoints with a static bearer token
type AdminAuth struct {
	token []byte
}

// NewAdminAuth creates a new admin auth middleware
func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: []byte(token)}
}

// Authenticate validates the bearer token
func (m *AdminAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Error(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.Error(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		if len(m.token) == 0 || subtle.ConstantTimeCompare([]byte(parts[1]), m.token) != 1 {
			response.Unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
