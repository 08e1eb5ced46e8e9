package http

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/pkg/apperr"
	"outreach_worker/pkg/response"
)

// SyncRunner runs one trigger synchronously.
type SyncRunner interface {
	Run(ctx context.Context, req domain.TriggerRequest) (*domain.RunSummary, error)
}

type ProgressReader interface {
	Progress(ctx context.Context, connectionID string) ([]*domain.SyncProgress, error)
}

type StaleRecoverer interface {
	RecoverStale(ctx context.Context) ([]*domain.SyncProgress, error)
}

// SyncHandler exposes the manual trigger surface.
type SyncHandler struct {
	runner   SyncRunner
	progress ProgressReader
	recovery StaleRecoverer
	queue    out.JobQueue // nil when no queue is configured
}

func NewSyncHandler(runner SyncRunner, progress ProgressReader, recovery StaleRecoverer, queue out.JobQueue) *SyncHandler {
	return &SyncHandler{
		runner:   runner,
		progress: progress,
		recovery: recovery,
		queue:    queue,
	}
}

func (h *SyncHandler) Register(router fiber.Router) {
	sync := router.Group("/sync")
	sync.Post("/recover", h.Recover)
	sync.Get("/:connectionID/progress", h.Progress)
	sync.Post("/:job/:connectionID", h.Trigger)
}

// triggerBody carries the optional trigger parameters.
type triggerBody struct {
	ResetCursor bool `json:"reset_cursor"`
	BatchSize   int  `json:"batch_size"`
	Cursor      *int `json:"cursor"`
}

// progressView adds the derived completion percentage.
type progressView struct {
	*domain.SyncProgress
	SyncPercent float64 `json:"sync_percent"`
}

// Trigger runs a job for a connection and returns its RunSummary. With
// ?async=true the trigger is queued and only its id is returned.
func (h *SyncHandler) Trigger(c *fiber.Ctx) error {
	job, ok := domain.ParseJobKind(c.Params("job"))
	if !ok {
		return apperr.UnknownJob(c.Params("job"))
	}
	connectionID := strings.TrimSpace(c.Params("connectionID"))
	if connectionID == "" {
		return apperr.MissingField("source_connection_id")
	}

	var body triggerBody
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return apperr.BadRequest("invalid request body")
		}
	}
	if body.BatchSize < 0 {
		return apperr.InvalidInput("batch_size", "must not be negative")
	}
	if body.Cursor != nil && *body.Cursor < 0 {
		return apperr.InvalidInput("cursor", "must not be negative")
	}

	req := domain.TriggerRequest{
		ConnectionID: connectionID,
		Job:          job,
		ResetCursor:  body.ResetCursor,
		BatchSize:    body.BatchSize,
		Cursor:       body.Cursor,
	}

	if c.QueryBool("async") {
		if h.queue == nil {
			return apperr.ConfigError("async triggers need a queue; REDIS_URL is not set")
		}
		id, err := h.queue.Enqueue(c.UserContext(), req)
		if err != nil {
			return apperr.ExternalError("queue", err)
		}
		return response.Accepted(c, fiber.Map{"trigger_id": id, "job": job, "source_connection_id": connectionID})
	}

	summary, err := h.runner.Run(c.UserContext(), req)
	if err != nil {
		if summary == nil {
			return err
		}
		// the run failed after it started: report its counts too
		appErr := apperr.AsAppError(err)
		return response.WithStatus(c, appErr.Status, summary, &response.ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		})
	}
	return response.OK(c, summary)
}

// Progress lists the progress of every job of a connection.
func (h *SyncHandler) Progress(c *fiber.Ctx) error {
	connectionID := strings.TrimSpace(c.Params("connectionID"))
	if connectionID == "" {
		return apperr.MissingField("source_connection_id")
	}

	list, err := h.progress.Progress(c.UserContext(), connectionID)
	if err != nil {
		return err
	}
	views := make([]progressView, 0, len(list))
	for _, p := range list {
		views = append(views, progressView{SyncProgress: p, SyncPercent: p.SyncPercent()})
	}
	return response.OKWithMeta(c, views, &response.Meta{Total: len(views)})
}

// Recover marks runs with a stale heartbeat as failed.
func (h *SyncHandler) Recover(c *fiber.Ctx) error {
	recovered, err := h.recovery.RecoverStale(c.UserContext())
	if err != nil {
		return apperr.DatabaseError("recover stale runs", err)
	}
	if recovered == nil {
		recovered = []*domain.SyncProgress{}
	}
	return response.OKWithMeta(c, recovered, &response.Meta{Total: len(recovered)})
}
