package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/handlers"
	"github.com/kestrelworks/beacon/internal/middleware"
	"github.com/kestrelworks/beacon/internal/repositories"
	"github.com/kestrelworks/beacon/internal/session"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Auth          *handlers.AuthHandler
	PasswordReset *handlers.PasswordResetHandler
	TwoFactor     *handlers.TwoFactorHandler
	CSRF          *handlers.CSRFHandler
	Contact       *handlers.ContactHandler
	Admin         *handlers.AdminHandler
}

// RegisterRoutes registers all /api routes. Auth-sensitive endpoints carry
// the stricter auth rate limit on top of the global API limit.
func RegisterRoutes(
	router chi.Router,
	h *Handlers,
	sessions *session.Manager,
	userRepo *repositories.UserRepository,
	counters middleware.CounterStore,
) {
	authLimit := middleware.AuthRateLimit(counters)
	contactLimit := middleware.ContactRateLimit(counters)

	// Public routes - no authentication required
	router.Get("/csrf-token", h.CSRF.Token)
	router.With(authLimit).Post("/auth/register", h.Auth.Register)
	router.With(authLimit).Post("/auth/login", h.Auth.Login)
	router.With(authLimit).Post("/auth/forgot-password", h.PasswordReset.ForgotPassword)
	router.Get("/auth/validate-reset-token", h.PasswordReset.ValidateToken)
	router.With(authLimit).Post("/auth/reset-password", h.PasswordReset.ResetPassword)
	router.With(contactLimit).Post("/contact", h.Contact.Submit)

	// Pending-2FA sessions are rejected by the session guard, so the verify
	// endpoint lives outside it and checks the cookie itself.
	router.With(authLimit).Post("/auth/2fa/verify", h.TwoFactor.Verify)

	// Logout accepts pending sessions too
	router.Post("/auth/logout", h.Auth.Logout)

	// Protected routes - fully authenticated session required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(sessions))

		r.Get("/auth/me", h.Auth.Me)
		r.Get("/auth/2fa/status", h.TwoFactor.Status)
		r.Post("/auth/2fa/setup", h.TwoFactor.Setup)
		r.Post("/auth/2fa/enable", h.TwoFactor.Enable)
		r.Post("/auth/2fa/disable", h.TwoFactor.Disable)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(userRepo))
			r.Get("/admin/users", h.Admin.ListUsers)
			r.Get("/admin/messages", h.Contact.List)
		})
	})
}
