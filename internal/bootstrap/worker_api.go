package bootstrap

import (
	"github.com/gofiber/fiber/v2"

	"outreach_worker/adapter/in/http"
	"outreach_worker/config"
	"outreach_worker/pkg/logger"
)

// NewAPI builds the HTTP trigger API.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}
	return newApp(deps), cleanup, nil
}

func newApp(deps *Dependencies) *fiber.App {
	health := http.NewHealthHandler(deps.SQLDB, deps.Redis, deps.MongoDB)
	sync := http.NewSyncHandler(deps.Runner, deps.Orchestrator, deps.Recovery, deps.Queue())
	if deps.Queue() == nil {
		logger.Warn("[API] no trigger queue configured, async triggers are rejected")
	}

	app := http.NewApp(health, sync, deps.Config.IsProduction())
	logger.Info("API server initialized successfully")
	return app
}
