package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// EdgeRateLimit is the per-IP request ceiling applied in front of the auth
// endpoints. It is a coarse outer guard; the per-key limiters inside the
// services enforce the real budgets.
type EdgeRateLimit struct {
	RequestsPerMinute int
}

// DefaultEdgeRateLimit allows 30 requests per minute per IP
func DefaultEdgeRateLimit() EdgeRateLimit {
	return EdgeRateLimit{RequestsPerMinute: 30}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// A zero or negative limit falls back to the default.
func RateLimitByIP(config EdgeRateLimit) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		config = DefaultEdgeRateLimit()
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many requests. Please try again later."}`))
		}),
	)
}
