package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/itsm-triage/internal/api/http/handlers"
	"github.com/spec-kit/itsm-triage/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Triage  *handlers.TriageHandler
	Metrics *handlers.MetricsHandler
	// AuthMiddleware guards /v1 when set; nil leaves the API open.
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	v1 := app.Group("/v1")
	if cfg.AuthMiddleware == nil {
		v1.Post("/triage", cfg.Triage.Triage)
		v1.Get("/metrics", cfg.Metrics.Get)
		return
	}

	protected := v1.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/triage", auth.RequireRole(auth.RoleOperator), cfg.Triage.Triage)
	protected.Get("/metrics", auth.RequireRole(), cfg.Metrics.Get)
}
