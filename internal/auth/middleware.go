package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-app/inkwell/internal/models"
	pkghttp "github.com/inkwell-app/inkwell/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// Middleware validates bearer tokens and injects user claims into context.
// A missing, invalid or expired token yields 401; the expired flag in the
// body lets clients distinguish re-login from silent retry.
func Middleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "Missing authorization header", false)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				pkghttp.WriteUnauthorized(w, "Invalid authorization header format", false)
				return
			}

			claims, err := tm.Validate(parts[1])
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					pkghttp.WriteUnauthorized(w, "Token has expired", true)
					return
				}
				pkghttp.WriteUnauthorized(w, "Invalid token", false)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext retrieves the authenticated user's claims, or nil when
// the request did not pass through Middleware.
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
