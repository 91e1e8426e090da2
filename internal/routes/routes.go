package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mit-27/panora-sync/internal/handlers"
)

type Handlers struct {
	Health   *handlers.HealthHandler
	Sync     *handlers.SyncHandler
	Attempts *handlers.AttemptsHandler
}

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.HealthCheck)

	api := app.Group("/api/v1")
	{
		api.Get("/", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"message": "Panora Sync API v1",
				"status":  "running",
			})
		})

		api.Post("/sync/trigger", h.Sync.Trigger)

		hooks := api.Group("/webhooks")
		hooks.Get("/attempts", h.Attempts.GetAttempts)
		hooks.Post("/verify", handlers.VerifySignature)
	}
}
