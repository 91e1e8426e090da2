package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/consumer"
	"github.com/mit-27/panora-sync/internal/models"
)

var ErrQueueClosed = errors.New("webhook: queue closed")

// Queue carries delivery jobs from the dispatcher and the retry path to the worker
type Queue interface {
	Publish(ctx context.Context, job models.DeliveryJob) error
	PublishDelayed(ctx context.Context, job models.DeliveryJob, delay time.Duration) error
	// Consume feeds every job body to handler until ctx is cancelled
	Consume(ctx context.Context, handler consumer.Handler) error
	Healthy() bool
}

func NewJob(attemptID uuid.UUID) models.DeliveryJob {
	return models.DeliveryJob{AttemptID: attemptID.String()}
}

func encodeJob(job models.DeliveryJob) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery job: %w", err)
	}
	return body, nil
}

// MemoryQueue is an in-process Queue; delayed jobs are held by timers and lost on exit
type MemoryQueue struct {
	jobs   chan []byte
	logger *zap.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

func NewMemoryQueue(buffer int, logger *zap.Logger) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryQueue{
		jobs:   make(chan []byte, buffer),
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, job models.DeliveryJob) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, body)
}

func (q *MemoryQueue) enqueue(ctx context.Context, body []byte) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) PublishDelayed(_ context.Context, job models.DeliveryJob, delay time.Duration) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		if err := q.enqueue(context.Background(), body); err != nil {
			q.logger.Warn("Dropped delayed delivery job",
				zap.String("attempt_id", job.AttemptID),
				zap.Error(err),
			)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

func (q *MemoryQueue) Consume(ctx context.Context, handler consumer.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case body := <-q.jobs:
			if err := handler.HandleMessage(ctx, body); err != nil {
				q.logger.Error("Failed to process delivery job",
					zap.ByteString("body", body),
					zap.Error(err),
				)
			}
		}
	}
}

// Len reports jobs ready for consumption
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Scheduled reports delayed jobs not yet due
func (q *MemoryQueue) Scheduled() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

func (q *MemoryQueue) Healthy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

// Close stops pending timers and rejects further publishes
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	clear(q.timers)
}
