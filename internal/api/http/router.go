package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health           *handlers.HealthHandler
	Policies         *handlers.PoliciesHandler
	Compliance       *handlers.ComplianceHandler
	Events           *handlers.EventsHandler
	AuthMiddleware   *auth.AuthMiddleware
	ServiceTokenHash string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Post("/sla-policies", cfg.Policies.CreatePolicy)
	admin.Get("/sla-policies", cfg.Policies.ListPolicies)
	admin.Get("/sla-policies/:id", cfg.Policies.GetPolicy)
	admin.Patch("/sla-policies/:id", cfg.Policies.UpdatePolicy)
	admin.Delete("/sla-policies/:id", cfg.Policies.DeletePolicy)

	sla := app.Group("/sla", cfg.AuthMiddleware.Handle, auth.RequireRole())
	sla.Get("/compliance", cfg.Compliance.Stats)
	sla.Get("/at-risk", cfg.Compliance.AtRisk)
	sla.Get("/breached", cfg.Compliance.Breached)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Get("/:id/sla", cfg.Compliance.TicketSla)

	callbacks := app.Group("/internal/events", auth.RequireServiceToken(cfg.ServiceTokenHash))
	callbacks.Post("/ticket-created", cfg.Events.TicketCreated)
	callbacks.Post("/first-response", cfg.Events.FirstResponse)
	callbacks.Post("/resolved", cfg.Events.Resolved)
}
