package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/dynaflow/dynaflow/internal/api/middleware"
)

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes(app *fiber.App) {
	app.Get("/api/health", h.health)

	api := app.Group("/api/v1")

	if h.stats != nil {
		api.Use(h.stats.Middleware())
	}

	if h.auth.Enabled {
		api.Use(middleware.JWTMiddleware(middleware.JWTConfig{
			SecretKey: h.auth.SecretKey,
			SkipPaths: []string{"/api/v1/auth/login"},
		}))
	}

	api.Post("/auth/login", h.login)

	if h.stats != nil {
		api.Get("/metrics", h.stats.Handler())
	}

	// Bus-wide operations.
	busRoutes := api.Group("/bus")
	busRoutes.Get("/ping/:id", h.ping)
	busRoutes.Get("/scan", h.scan)
	busRoutes.Get("/scans", h.listScans)
	busRoutes.Post("/sync-read", h.syncRead)
	busRoutes.Post("/sync-write", h.syncWrite)

	// Per-servo operations.
	servoRoutes := api.Group("/servos")
	servoRoutes.Get("/", h.listServos)
	servoRoutes.Get("/:id/registers", h.listRegisters)
	servoRoutes.Get("/:id/registers/:name", h.readRegister)
	servoRoutes.Put("/:id/registers/:name", h.writeRegister)
	servoRoutes.Get("/:id/samples", h.listSamples)
	servoRoutes.Post("/:id/factory-reset", h.factoryReset)

	// Websocket telemetry stream.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.hub.HandleWebSocket))
}

// health returns the service health status.
func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "dynaflow",
	})
}
