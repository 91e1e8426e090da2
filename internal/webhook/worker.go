package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/consumer"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/store"
)

// Envelope is the JSON body POSTed to endpoints
type Envelope struct {
	IDEvent string          `json:"id_event"`
	Data    json.RawMessage `json:"data"`
}

// Worker performs deliveries and records their outcome
type Worker struct {
	store     store.Store
	queue     Queue
	deliverer *Deliverer
	logger    *zap.Logger
	now       func() time.Time
}

func NewWorker(s store.Store, queue Queue, deliverer *Deliverer, logger *zap.Logger) *Worker {
	return &Worker{
		store:     s,
		queue:     queue,
		deliverer: deliverer,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes the delivery queue until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Webhook worker started")
	defer w.logger.Info("Webhook worker stopped")
	return w.queue.Consume(ctx, consumer.HandlerFunc(w.HandleMessage))
}

// HandleMessage decodes one queued job. Malformed jobs are logged and dropped.
func (w *Worker) HandleMessage(ctx context.Context, body []byte) error {
	var job models.DeliveryJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.logger.Error("Failed to unmarshal delivery job", zap.ByteString("body", body), zap.Error(err))
		return nil
	}
	attemptID, err := uuid.Parse(job.AttemptID)
	if err != nil {
		w.logger.Error("Invalid attempt_id in delivery job", zap.String("attempt_id", job.AttemptID), zap.Error(err))
		return nil
	}
	return w.HandleDelivery(ctx, attemptID)
}

// claimSkew tolerates delayed jobs arriving slightly before next_retry
const claimSkew = time.Second

// HandleDelivery claims a queued attempt, or a failed one whose retry is due,
// and delivers it once. Early, in-flight and terminal attempts are skipped.
func (w *Worker) HandleDelivery(ctx context.Context, attemptID uuid.UUID) error {
	claimed, err := w.store.ClaimAttempt(ctx, attemptID, w.now().Add(claimSkew))
	if err != nil {
		return fmt.Errorf("failed to claim attempt %s: %w", attemptID, err)
	}
	if !claimed {
		w.logger.Info("Attempt not claimable, skipping",
			zap.String("attempt_id", attemptID.String()),
			zap.String("reason", "terminal, in flight or retry not yet due"),
		)
		return nil
	}

	attempt, err := w.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return fmt.Errorf("failed to load attempt %s: %w", attemptID, err)
	}
	_, err = w.Deliver(ctx, attempt)
	return err
}

// Deliver performs one try for an attempt in processed status and persists the outcome
func (w *Worker) Deliver(ctx context.Context, attempt *models.WebhookDeliveryAttempt) (Outcome, error) {
	startedAt := w.now()
	result := w.post(ctx, attempt)
	finishedAt := w.now()

	tries := attempt.AttemptCount + 1
	outcome := Decide(result, tries, attempt.MaxAttempts, finishedAt)

	attempt.Status = outcome.Status
	attempt.AttemptCount = tries
	attempt.NextRetry = outcome.NextRetry
	attempt.LastError = outcome.LastError
	if result.HTTPStatus != nil {
		attempt.ResponseStatus = result.HTTPStatus
		body := result.ResponseBody
		attempt.ResponseBody = &body
	}

	var resultErr *string
	if result.Error != nil {
		msg := result.Error.Error()
		resultErr = &msg
	}

	err := w.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateDeliveryLog(ctx, &models.WebhookDeliveryLog{
			AttemptID:       attempt.ID,
			AttemptNo:       tries,
			StartedAt:       startedAt,
			FinishedAt:      finishedAt,
			HTTPStatus:      result.HTTPStatus,
			LatencyMs:       result.LatencyMs,
			ResponseSummary: result.ResponseSummary,
			Error:           resultErr,
		}); err != nil {
			return fmt.Errorf("failed to create delivery log: %w", err)
		}
		if err := tx.UpdateAttempt(ctx, attempt); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		w.logger.Error("Failed to record delivery outcome",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err),
		)
		return outcome, err
	}

	fields := []zap.Field{
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("event_type", attempt.EventType),
		zap.Int("attempt_count", tries),
		zap.Int("latency_ms", result.LatencyMs),
	}
	switch outcome.Status {
	case models.DeliveryStatusSuccess:
		w.logger.Info("Webhook delivery succeeded", append(fields, zap.Intp("http_status", result.HTTPStatus))...)
	case models.DeliveryStatusDead:
		w.logger.Warn("Webhook delivery dead (max attempts reached)", append(fields, zap.Stringp("last_error", outcome.LastError))...)
	default:
		w.logger.Info("Webhook delivery will be retried",
			append(fields, zap.Timep("next_retry", outcome.NextRetry), zap.Stringp("last_error", outcome.LastError))...)
		if err := w.queue.PublishDelayed(ctx, NewJob(attempt.ID), outcome.Delay); err != nil {
			// the sweeper re-publishes overdue failed attempts
			w.logger.Error("Failed to schedule retry",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err),
			)
		}
	}
	return outcome, nil
}

func (w *Worker) post(ctx context.Context, attempt *models.WebhookDeliveryAttempt) *DeliveryResult {
	endpoint, err := w.store.GetEndpoint(ctx, attempt.EndpointID)
	if errors.Is(err, store.ErrNotFound) {
		return &DeliveryResult{Error: fmt.Errorf("endpoint %s no longer exists", attempt.EndpointID)}
	}
	if err != nil {
		return &DeliveryResult{Error: fmt.Errorf("failed to load endpoint: %w", err)}
	}
	if !endpoint.Active {
		return &DeliveryResult{Error: fmt.Errorf("endpoint %s is inactive", endpoint.ID)}
	}

	payload, err := w.store.GetPayload(ctx, attempt.PayloadID)
	if err != nil {
		return &DeliveryResult{Error: fmt.Errorf("failed to load payload: %w", err)}
	}

	body, err := json.Marshal(Envelope{IDEvent: attempt.EventID.String(), Data: json.RawMessage(payload.Data)})
	if err != nil {
		return &DeliveryResult{Error: fmt.Errorf("failed to marshal webhook payload: %w", err)}
	}
	return w.deliverer.Deliver(ctx, endpoint.URL, body, endpoint.Secret)
}
