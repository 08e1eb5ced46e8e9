package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"outreach_worker/config"
	"outreach_worker/internal/bootstrap"
	"outreach_worker/pkg/logger"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "outreach-worker",
		Console: cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	switch *mode {
	case "api":
		runAPI(cfg)
	case "worker":
		runWorker(cfg)
	case "all":
		runAll(cfg)
	case "once":
		runOnce(cfg)
	default:
		logger.Fatal("Unknown mode: %s", *mode)
	}
}

func runAPI(cfg *config.Config) {
	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize API: %v", err)
	}
	defer cleanup()

	go func() {
		waitForSignal()
		shutdownApp(app)
	}()

	listen(app, cfg)
}

func runWorker(cfg *config.Config) {
	worker, cleanup, err := bootstrap.NewWorker(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize worker: %v", err)
	}
	defer cleanup()

	go func() {
		waitForSignal()
		stopWorker(worker)
	}()

	logger.Info("Starting worker...")
	worker.Start()
}

func runAll(cfg *config.Config) {
	all, cleanup, err := bootstrap.NewAll(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize: %v", err)
	}
	defer cleanup()

	go all.Worker.Start()
	go func() {
		waitForSignal()
		stopWorker(all.Worker)
		shutdownApp(all.App)
	}()

	listen(all.App, cfg)
}

func runOnce(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := bootstrap.RunOnce(ctx, cfg)
	if err != nil {
		logger.Fatal("Sync failed: %v", err)
	}
	logger.Info("Sync finished: %d runs, %d recovered, %d skipped, %d failed",
		len(report.Summaries), report.Recovered, report.Skipped, len(report.Failed))
	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

func listen(app *fiber.App, cfg *config.Config) {
	addr := ":" + cfg.Port
	logger.Info("Starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

func shutdownApp(app *fiber.App) {
	logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("Error shutting down: %v", err)
		return
	}
	logger.Info("API server shut down gracefully")
}

func stopWorker(worker *bootstrap.Worker) {
	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Worker shut down gracefully")
	case <-time.After(shutdownTimeout):
		logger.Warn("Worker shutdown timed out, forcing exit")
		os.Exit(1)
	}
}
