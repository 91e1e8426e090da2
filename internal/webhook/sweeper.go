package webhook

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/store"
)

const sweepBatchSize = 100

// Sweeper re-publishes attempts whose job was lost: failed attempts overdue by
// more than the grace period and queued attempts older than it
type Sweeper struct {
	store    store.WebhookStore
	queue    Queue
	interval time.Duration
	grace    time.Duration
	logger   *zap.Logger
}

func NewSweeper(s store.WebhookStore, queue Queue, interval, grace time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{store: s, queue: queue, interval: interval, grace: grace, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx, time.Now().UTC()); err != nil {
				s.logger.Error("Webhook sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce publishes every attempt due before now minus the grace period
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListDueAttempts(ctx, now.Add(-s.grace), sweepBatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, attempt := range due {
		if err := s.queue.Publish(ctx, NewJob(attempt.ID)); err != nil {
			s.logger.Warn("Failed to re-publish attempt",
				zap.String("attempt_id", attempt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		published++
	}
	if published > 0 {
		s.logger.Info("Re-published overdue webhook attempts", zap.Int("count", published))
	}
	return published, nil
}
