package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ads-users/internal/api/http/handlers"
	"github.com/spec-kit/ads-users/internal/auth"
	"github.com/spec-kit/ads-users/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	// AuthEnabled guards write routes with bearer tokens. Disabled only for local runs.
	AuthEnabled bool
}

// RegisterRoutes wires HTTP routes. The app must be created with strict
// routing off so that each path also matches without its trailing slash.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	users := app.Group("/users")
	users.Get("/", cfg.Users.List)
	users.Get("/:id/", cfg.Users.Get)

	adminOnly := guard(cfg, auth.RequireRole(domain.RoleAdmin))
	selfOrAdmin := guard(cfg, auth.RequireSelfOrRole("id", domain.RoleAdmin), auth.RequireRoleUnchanged())

	users.Post("/create/", append(adminOnly, cfg.Users.Create)...)
	users.Patch("/:id/update/", append(selfOrAdmin, cfg.Users.Update)...)
	users.Delete("/:id/delete/", append(adminOnly, cfg.Users.Delete)...)
}

func guard(cfg RouteConfig, checks ...fiber.Handler) []fiber.Handler {
	if !cfg.AuthEnabled || cfg.AuthMiddleware == nil {
		return nil
	}
	return append([]fiber.Handler{cfg.AuthMiddleware.Handle}, checks...)
}
