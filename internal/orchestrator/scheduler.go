package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Runner is satisfied by *Orchestrator
type Runner interface {
	RunPass(ctx context.Context, req PassRequest) PassReport
}

// Schedule runs one (vertical, object) pass for every tenant each Period
type Schedule struct {
	Vertical string
	Object   string
	Period   time.Duration
}

type scheduled struct {
	Schedule
	running atomic.Bool
}

// Scheduler keeps one ticker per schedule. A tick that lands while the
// previous pass of the same schedule is still running is dropped.
type Scheduler struct {
	runner     Runner
	schedules  []*scheduled
	runOnStart bool
	logger     *zap.Logger
	wg         sync.WaitGroup
}

func NewScheduler(runner Runner, schedules []Schedule, runOnStart bool, logger *zap.Logger) *Scheduler {
	s := &Scheduler{runner: runner, runOnStart: runOnStart, logger: logger}
	for _, sc := range schedules {
		s.schedules = append(s.schedules, &scheduled{Schedule: sc})
	}
	return s
}

// Start launches the tickers; they stop when ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	for _, sc := range s.schedules {
		s.wg.Add(1)
		go s.loop(ctx, sc)
	}
	s.logger.Info("Scheduler started", zap.Int("schedules", len(s.schedules)))
}

// Wait blocks until every ticker loop and in-flight pass has returned
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sc *scheduled) {
	defer s.wg.Done()

	if s.runOnStart {
		s.fire(ctx, sc)
	}

	ticker := time.NewTicker(sc.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.fire(ctx, sc) {
				s.logger.Warn("Previous pass still running, skipping tick",
					zap.String("vertical", sc.Vertical),
					zap.String("object", sc.Object),
				)
			}
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, sc *scheduled) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sc.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sc.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Scheduled pass panicked",
					zap.String("vertical", sc.Vertical),
					zap.String("object", sc.Object),
					zap.Any("panic", r),
				)
			}
		}()
		s.runner.RunPass(ctx, PassRequest{Vertical: sc.Vertical, Object: sc.Object})
	}()
	return true
}
