package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/inkwell-app/inkwell/internal/auth"
	"github.com/inkwell-app/inkwell/internal/handlers"
	"github.com/inkwell-app/inkwell/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	tokenManager *auth.TokenManager,
	edgeLimit middleware.EdgeRateLimit,
) {
	// Public routes - per-IP edge limiting in front of every auth endpoint
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(edgeLimit))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/verify-signup", authHandler.VerifySignup)
		r.Post("/auth/resend-otp", authHandler.ResendOTP)
		r.Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/auth/verify-reset-otp", authHandler.VerifyResetOTP)
		r.Post("/auth/reset-password", authHandler.ResetPassword)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Post("/auth/change-password", authHandler.ChangePassword)
		r.Post("/auth/set-password", authHandler.SetPassword)
		r.Post("/auth/verify-password", authHandler.VerifyPassword)
	})
}
