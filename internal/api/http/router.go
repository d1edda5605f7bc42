package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/civic-ticket-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration. Optional handlers
// left nil are not mounted.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	Tickets     *handlers.TicketsHandler
	Reports     *handlers.ReportsHandler
	Routes      *handlers.RoutesHandler
	Evidence    *handlers.EvidenceHandler
	Authorities *handlers.AuthoritiesHandler
	Metrics     *prometheus.Registry
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})))
	}

	if cfg.Authorities != nil {
		app.Get("/authorities", cfg.Authorities.List)
	}

	if cfg.Reports != nil {
		app.Post("/reports/analyze", cfg.Reports.Analyze)
	}

	tickets := app.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/votes", cfg.Tickets.Vote)
	tickets.Post("/:id/timeline", cfg.Tickets.AddTimelineEvent)

	if cfg.Routes != nil {
		app.Get("/routes/hazards", cfg.Routes.Hazards)
	}

	if cfg.Evidence != nil {
		app.Get("/evidence/:key", cfg.Evidence.Get)
	}
}
