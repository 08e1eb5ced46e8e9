package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"outreach_worker/pkg/metrics"
)

// HealthHandler reports liveness, readiness and Prometheus metrics. Every
// dependency is optional; absent ones report "not configured".
type HealthHandler struct {
	db    *sqlx.DB
	redis *redis.Client
	mongo *mongo.Client
}

func NewHealthHandler(db *sqlx.DB, redis *redis.Client, mongo *mongo.Client) *HealthHandler {
	return &HealthHandler{
		db:    db,
		redis: redis,
		mongo: mongo,
	}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.db != nil {
		stats := metrics.GetDBPoolStats(h.db.DB)
		body["db_pool"] = fiber.Map{
			"stats":  stats,
			"health": metrics.AssessDBPoolHealth(stats),
		}
	}
	return c.JSON(body)
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true
	check := func(name string, configured bool, ping func() error) {
		if !configured {
			checks[name] = "not configured"
			return
		}
		if err := ping(); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	check("database", h.db != nil, func() error { return h.db.PingContext(ctx) })
	check("redis", h.redis != nil, func() error { return h.redis.Ping(ctx).Err() })
	check("mongodb", h.mongo != nil, func() error { return h.mongo.Ping(ctx, nil) })

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
