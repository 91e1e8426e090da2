package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/mit-27/panora-sync/internal/models"
)

type Mode string

const (
	ModeQueued   Mode = "queued"
	ModePriority Mode = "priority"
)

const defaultMaxAttempts = 8

// Trigger describes one domain event to fan out
type Trigger struct {
	ProjectID uuid.UUID
	EventID   uuid.UUID
	EventType string
	Data      any
	Mode      Mode
}

type Dispatcher struct {
	store       dispatchStore
	queue       Queue
	worker      *Worker
	maxAttempts int
	logger      *zap.Logger
}

type dispatchStore interface {
	ListActiveEndpoints(ctx context.Context, projectID uuid.UUID) ([]models.WebhookEndpoint, error)
	CreateDelivery(ctx context.Context, payload *models.WebhookPayload, attempt *models.WebhookDeliveryAttempt) error
}

func NewDispatcher(s dispatchStore, queue Queue, worker *Worker, maxAttempts int, logger *zap.Logger) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Dispatcher{store: s, queue: queue, worker: worker, maxAttempts: maxAttempts, logger: logger}
}

// Dispatch creates one payload and attempt per subscribed active endpoint and
// returns the attempt ids. Failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) []uuid.UUID {
	logger := d.logger.With(
		zap.String("project_id", t.ProjectID.String()),
		zap.String("event_id", t.EventID.String()),
		zap.String("event_type", t.EventType),
	)

	endpoints, err := d.store.ListActiveEndpoints(ctx, t.ProjectID)
	if err != nil {
		logger.Error("Failed to list webhook endpoints", zap.Error(err))
		return nil
	}

	var matching []models.WebhookEndpoint
	for _, endpoint := range endpoints {
		if endpoint.Subscribes(t.EventType) {
			matching = append(matching, endpoint)
		}
	}
	if len(matching) == 0 {
		logger.Debug("No webhook endpoint subscribed")
		return nil
	}

	data, err := json.Marshal(t.Data)
	if err != nil {
		logger.Error("Failed to marshal webhook data", zap.Error(err))
		return nil
	}

	status := models.DeliveryStatusQueued
	if t.Mode == ModePriority {
		status = models.DeliveryStatusProcessed
	}

	ids := make([]uuid.UUID, 0, len(matching))
	for _, endpoint := range matching {
		payload := &models.WebhookPayload{ID: uuid.New(), EventID: t.EventID, Data: datatypes.JSON(data)}
		attempt := &models.WebhookDeliveryAttempt{
			ID:          uuid.New(),
			ProjectID:   t.ProjectID,
			EndpointID:  endpoint.ID,
			EventID:     t.EventID,
			EventType:   t.EventType,
			Status:      status,
			MaxAttempts: d.maxAttempts,
			Timestamp:   time.Now().UTC(),
		}
		if err := d.store.CreateDelivery(ctx, payload, attempt); err != nil {
			logger.Error("Failed to create webhook delivery",
				zap.String("endpoint_id", endpoint.ID.String()),
				zap.Error(err),
			)
			continue
		}
		ids = append(ids, attempt.ID)

		if t.Mode == ModePriority {
			if _, err := d.worker.Deliver(ctx, attempt); err != nil {
				logger.Error("Priority delivery failed", zap.String("attempt_id", attempt.ID.String()), zap.Error(err))
			}
			continue
		}
		if err := d.queue.Publish(ctx, NewJob(attempt.ID)); err != nil {
			// the sweeper re-publishes stale queued attempts
			logger.Error("Failed to publish delivery job",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err),
			)
		}
	}

	logger.Info("Webhook event dispatched", zap.Int("attempts", len(ids)), zap.String("mode", string(t.Mode)))
	return ids
}
