package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/report-service/internal/api/http/handlers"
	"github.com/spec-kit/report-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Reports        *handlers.ReportsHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	reports := app.Group("/reports", cfg.AuthMiddleware.Handle, auth.RequirePermission(auth.PermReports))
	reports.Get("/stats", cfg.Reports.GetStats)
	reports.Get("/search", cfg.Reports.SearchReports)
	reports.Get("/:id", cfg.Reports.GetReport)
	reports.Post("", cfg.Reports.CreateReport)
	reports.Post("/:id/messages", cfg.Reports.SendMessage)
	reports.Post("/:id/close", cfg.Reports.CloseReport)

	// The websocket handshake authenticates itself via token query;
	// permission checks happen per room inside the hub.
	app.Get("/ws", cfg.WS.Upgrade, cfg.WS.Handler())
}
