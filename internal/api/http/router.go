package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fieldops/auth-service/internal/api/http/handlers"
	"github.com/fieldops/auth-service/internal/auth"
	"github.com/fieldops/auth-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Accounts       *handlers.AccountsHandler
	AuthMiddleware *auth.AuthMiddleware
	// LoginLimit and OTPLimit may be nil to disable rate limiting.
	LoginLimit fiber.Handler
	OTPLimit   fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", withLimit(cfg.LoginLimit, cfg.Auth.Login)...)
	authGroup.Post("/refresh-token", cfg.Auth.Refresh)
	authGroup.Post("/forgot-password", cfg.Auth.ForgotPassword)
	authGroup.Post("/reset-password", cfg.Auth.ResetPassword)
	authGroup.Post("/send-otp", withLimit(cfg.OTPLimit, cfg.Auth.SendOTP)...)
	authGroup.Post("/verify-otp", cfg.Auth.VerifyOTP)

	protected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Get("/me", cfg.Auth.Me)
	protected.Post("/change-password", cfg.Auth.ChangePassword)
	protected.Post("/link-phone", cfg.Auth.LinkPhone)

	app.Get("/accounts/:id", cfg.AuthMiddleware.Handle, auth.SelfOrRoleGuard("id", domain.RoleAdmin), cfg.Accounts.Get)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RoleGuard(domain.RoleAdmin))
	admin.Get("/accounts", cfg.Accounts.List)
}

func withLimit(limit fiber.Handler, handler fiber.Handler) []fiber.Handler {
	if limit == nil {
		return []fiber.Handler{handler}
	}
	return []fiber.Handler{limit, handler}
}
