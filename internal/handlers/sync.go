package handlers

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/orchestrator"
)

// SyncHandler triggers a manual sync pass. The pass runs in the background
// against the service context, not the request's, and is tracked by wg so
// shutdown can wait for it.
type SyncHandler struct {
	ctx    context.Context
	runner orchestrator.Runner
	wg     *sync.WaitGroup
	logger *zap.Logger
}

func NewSyncHandler(ctx context.Context, runner orchestrator.Runner, wg *sync.WaitGroup, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{ctx: ctx, runner: runner, wg: wg, logger: logger}
}

type TriggerRequest struct {
	TenantID string `json:"tenant_id"`
	Vertical string `json:"vertical"`
	Object   string `json:"object"`
}

// Trigger handles POST /api/v1/sync/trigger
func (h *SyncHandler) Trigger(c *fiber.Ctx) error {
	var body TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	req := orchestrator.PassRequest{Vertical: body.Vertical, Object: body.Object}
	if body.TenantID != "" {
		id, err := uuid.Parse(body.TenantID)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "tenant_id must be a UUID",
			})
		}
		req.ProjectID = &id
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		report := h.runner.RunPass(h.ctx, req)
		h.logger.Info("Manual sync pass completed",
			zap.String("tenant_id", body.TenantID),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
		)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}
