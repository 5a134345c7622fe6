package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-service/internal/api/http/handlers"
	"github.com/spec-kit/auth-service/internal/auth"
	"github.com/spec-kit/auth-service/internal/config"
)

// FiberConfig builds the fiber settings for the service. A proxy header is
// only read from trusted proxies, so callers cannot pick their own address
// for rate limiting.
func FiberConfig(app config.AppConfig) fiber.Config {
	cfg := fiber.Config{AppName: app.Name}
	if app.ProxyHeader != "" {
		cfg.ProxyHeader = app.ProxyHeader
		cfg.EnableTrustedProxyCheck = true
		cfg.TrustedProxies = app.TrustedProxies
		cfg.EnableIPValidation = true
	}
	return cfg
}

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health            *handlers.HealthHandler
	Auth              *handlers.AuthHandler
	SessionMiddleware *auth.SessionMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/auth")
	api.Post("/signup", cfg.Auth.SignUp)
	api.Post("/resend", cfg.Auth.Resend)
	api.Post("/confirm", cfg.Auth.Confirm)
	api.Post("/sign-in", cfg.Auth.SignIn)
	api.Post("/get-sign-in-link", cfg.Auth.GetSignInLink)
	api.Post("/sign-in-with-link", cfg.Auth.SignInWithLink)
	api.Get("/get-session", cfg.Auth.GetSession)
	api.Post("/sign-out", cfg.Auth.SignOut)
	api.Post("/initiate-password-reset", cfg.Auth.InitiatePasswordReset)
	api.Post("/reset-password", cfg.Auth.ResetPassword)
	api.Post("/update-email", cfg.Auth.UpdateEmail)

	signedIn := cfg.SessionMiddleware.Handle
	api.Post("/disable-password-sign-in", signedIn, cfg.Auth.DisablePasswordSignIn)
	api.Post("/enable-password-sign-in", signedIn, cfg.Auth.EnablePasswordSignIn)
	api.Post("/change-password", signedIn, cfg.Auth.ChangePassword)
	api.Post("/initiate-update-email", signedIn, cfg.Auth.InitiateUpdateEmail)
	api.Post("/update-profile", signedIn, cfg.Auth.UpdateProfile)
	api.Delete("/delete-user", signedIn, cfg.Auth.DeleteUser)
}
