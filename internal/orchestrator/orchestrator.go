// Package orchestrator runs sync passes across linked users and keeps them on a schedule.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/pipeline"
	"github.com/mit-27/panora-sync/internal/store"
)

const defaultMaxConcurrency = 4

type OutcomeStatus string

const (
	OutcomeSynced  OutcomeStatus = "synced"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// PassRequest scopes a pass. Zero values mean every tenant, vertical or object.
type PassRequest struct {
	ProjectID *uuid.UUID `json:"tenant_id,omitempty"`
	Vertical  string     `json:"vertical,omitempty"`
	Object    string     `json:"object,omitempty"`
}

// Outcome is the result of one (linked user, object, provider) branch
type Outcome struct {
	ProjectID    uuid.UUID       `json:"tenant_id"`
	LinkedUserID uuid.UUID       `json:"linked_user_id"`
	Vertical     string          `json:"vertical"`
	Object       string          `json:"object"`
	Provider     string          `json:"provider"`
	Status       OutcomeStatus   `json:"status"`
	Reason       string          `json:"reason,omitempty"`
	Result       pipeline.Result `json:"result"`
}

type PassReport struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	LinkedUsers int       `json:"linked_users"`
	Outcomes    []Outcome `json:"outcomes"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
}

type Config struct {
	Tenants     store.TenantStore
	Credentials CredentialResolver
	Jobs        []pipeline.Job
	// Providers lists the providers of a vertical in sync order
	Providers      func(vertical string) []string
	MaxConcurrency int
	Logger         *zap.Logger
}

type Orchestrator struct {
	tenants        store.TenantStore
	credentials    CredentialResolver
	jobs           []pipeline.Job
	providers      func(vertical string) []string
	maxConcurrency int
	locks          *keyedMutex
	logger         *zap.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Orchestrator{
		tenants:        cfg.Tenants,
		credentials:    cfg.Credentials,
		jobs:           cfg.Jobs,
		providers:      cfg.Providers,
		maxConcurrency: cfg.MaxConcurrency,
		locks:          newKeyedMutex(),
		logger:         cfg.Logger,
	}
}

// RunPass syncs every matching (linked user, job, provider) branch and waits
// for all of them. Branch failures are reported in the outcomes, never returned.
func (o *Orchestrator) RunPass(ctx context.Context, req PassRequest) PassReport {
	report := PassReport{StartedAt: time.Now().UTC()}
	defer func() {
		report.FinishedAt = time.Now().UTC()
	}()

	jobs := o.selectJobs(req)
	if len(jobs) == 0 {
		o.logger.Warn("No sync job matches request",
			zap.String("vertical", req.Vertical),
			zap.String("object", req.Object),
		)
		return report
	}

	users, err := o.tenants.ListLinkedUsers(ctx, req.ProjectID)
	if err != nil {
		o.logger.Error("Failed to list linked users", zap.Error(err))
		return report
	}
	report.LinkedUsers = len(users)

	results := make([][]Outcome, len(users))
	sem := make(chan struct{}, o.maxConcurrency)
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, user models.LinkedUser) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.syncUser(ctx, user, jobs)
		}(i, user)
	}
	wg.Wait()

	for _, outcomes := range results {
		for _, outcome := range outcomes {
			switch outcome.Status {
			case OutcomeSynced:
				report.Succeeded++
			case OutcomeSkipped:
				report.Skipped++
			case OutcomeFailed:
				report.Failed++
			}
			report.Outcomes = append(report.Outcomes, outcome)
		}
	}

	o.logger.Info("Sync pass finished",
		zap.Int("linked_users", report.LinkedUsers),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (o *Orchestrator) selectJobs(req PassRequest) []pipeline.Job {
	var jobs []pipeline.Job
	for _, job := range o.jobs {
		if req.Vertical != "" && job.Vertical() != req.Vertical {
			continue
		}
		if req.Object != "" && job.Object() != req.Object {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// syncUser walks providers one at a time so a user's writes stay ordered
func (o *Orchestrator) syncUser(ctx context.Context, user models.LinkedUser, jobs []pipeline.Job) []Outcome {
	var outcomes []Outcome
	for _, job := range jobs {
		for _, provider := range o.providers(job.Vertical()) {
			outcome := Outcome{
				ProjectID:    user.ProjectID,
				LinkedUserID: user.ID,
				Vertical:     job.Vertical(),
				Object:       job.Object(),
				Provider:     provider,
			}
			if err := ctx.Err(); err != nil {
				outcome.Status = OutcomeFailed
				outcome.Reason = err.Error()
			} else {
				o.runBranch(ctx, job, user, &outcome)
			}
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes
}

func (o *Orchestrator) runBranch(ctx context.Context, job pipeline.Job, user models.LinkedUser, outcome *Outcome) {
	logger := o.logger.With(
		zap.String("linked_user_id", user.ID.String()),
		zap.String("vertical", outcome.Vertical),
		zap.String("object", outcome.Object),
		zap.String("provider", outcome.Provider),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Sync branch panicked", zap.Any("panic", r))
			outcome.Status = OutcomeFailed
			outcome.Reason = fmt.Sprintf("panic: %v", r)
		}
	}()

	conn, err := o.credentials.Resolve(ctx, user.ID, outcome.Provider, outcome.Vertical)
	switch {
	case errors.Is(err, store.ErrNotFound):
		outcome.Status = OutcomeSkipped
		outcome.Reason = "no connection"
		return
	case errors.Is(err, ErrConnectionInvalid):
		logger.Info("Skipping invalid connection", zap.Error(err))
		outcome.Status = OutcomeSkipped
		outcome.Reason = err.Error()
		return
	case err != nil:
		logger.Error("Failed to resolve connection", zap.Error(err))
		outcome.Status = OutcomeFailed
		outcome.Reason = err.Error()
		return
	}

	unlock := o.locks.Lock(conn.ID)
	defer unlock()

	res, err := job.Sync(ctx, pipeline.Target{
		ProjectID:    user.ProjectID,
		LinkedUserID: user.ID,
		Provider:     outcome.Provider,
		Connection:   conn,
	})
	outcome.Result = res
	switch {
	case err != nil:
		logger.Error("Sync branch failed", zap.Error(err))
		outcome.Status = OutcomeFailed
		outcome.Reason = err.Error()
	case res.Skipped:
		outcome.Status = OutcomeSkipped
		outcome.Reason = "no adapter"
	default:
		outcome.Status = OutcomeSynced
	}
}
