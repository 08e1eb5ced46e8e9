package http

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"outreach_worker/infra/middleware"
)

const maxBodyBytes = 64 * 1024

// NewApp builds the fiber app with the shared middleware stack and the
// health, metrics and sync routes.
func NewApp(health *HealthHandler, sync *SyncHandler, production bool) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: production,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             maxBodyBytes,
		ServerHeader:          "",
	})

	// order matters
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	health.Register(app)

	api := app.Group("/api/v1", middleware.ValidateContentType(), middleware.MaxBodySize(maxBodyBytes))
	sync.Register(api)

	return app
}
