// Package engine implements the orchestration layer: job creation,
// retry and cancel actions, bulk batching, and the worker-facing
// transition operations. Every mutation goes through the store's
// conditional ApplyTransition, so two orchestrators (or an orchestrator
// racing a worker) serialize on the job's pre-state instead of a lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/backoff"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// Engine exposes the orchestration operations over a job store.
type Engine struct {
	store  job.Store
	logger *slog.Logger
	retry  backoff.Strategy
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryBackoff sets the strategy for computing a resubmitted job's
// eligibility delay.
func WithRetryBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.retry = b }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store.
func New(store job.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		retry:  backoff.DefaultRetry(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ping reports whether the backing store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Create validates the spec and persists a new pending job.
func (e *Engine) Create(ctx context.Context, spec job.Spec) (*job.Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("engine: create: %w: %w", jobline.ErrValidation, err)
	}

	j := job.NewFromSpec(spec)
	if err := e.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("engine: create: %w", err)
	}

	e.logger.Info("job created",
		slog.String("job_id", j.ID.String()),
		slog.String("type", string(j.Type)),
		slog.String("name", j.Name),
	)
	return j, nil
}

// Get returns the job by ID.
func (e *Engine) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// List returns a page of jobs matching the filter.
func (e *Engine) List(ctx context.Context, f job.Filter, p job.PageOpts) (*job.Page, error) {
	return e.store.ListJobs(ctx, f, p)
}

// Retry resubmits a failed job: failed→pending, retry count incremented,
// progress and run timestamps reset, error history preserved. The
// transition is conditional on the job still being failed; on a conflict
// the sequence is re-read and attempted once more, then the conflict is
// surfaced rather than silently dropped. Retrying a job that is not
// failed fails with ErrInvalidState, which is what makes a duplicate
// client request safe: the first one moves the job to pending, the
// second is rejected instead of double-incrementing the count.
func (e *Engine) Retry(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	updated, err := e.retryOnce(ctx, jobID)
	if errors.Is(err, jobline.ErrConflict) {
		updated, err = e.retryOnce(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("job resubmitted",
		slog.String("job_id", jobID.String()),
		slog.Int("retry_count", updated.RetryCount),
		slog.Time("run_at", updated.RunAt),
	)
	return updated, nil
}

func (e *Engine) retryOnce(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("engine: retry: %w", err)
	}
	if j.Status != job.StatusFailed {
		return nil, fmt.Errorf("engine: retry: status is %s: %w", j.Status, jobline.ErrInvalidState)
	}
	if j.RetryCount >= j.MaxRetries {
		return nil, fmt.Errorf("engine: retry: %d of %d attempts used: %w",
			j.RetryCount, j.MaxRetries, jobline.ErrRetryLimitExceeded)
	}

	tr, err := job.NewTransition(j.Status, job.EventRetry)
	if err != nil {
		return nil, fmt.Errorf("engine: retry: %w", err)
	}
	tr.RunAt = e.now().Add(e.retry.Delay(j.RetryCount + 1))

	updated, err := e.store.ApplyTransition(ctx, jobID, tr)
	if err != nil {
		return nil, fmt.Errorf("engine: retry: %w", err)
	}
	return updated, nil
}

// Cancel moves a pending or running job to cancelled. The state machine
// rejects cancelling a terminal job with ErrInvalidTransition. Like
// Retry, a conflicting concurrent modification is re-read once.
func (e *Engine) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	updated, err := e.cancelOnce(ctx, jobID)
	if errors.Is(err, jobline.ErrConflict) {
		updated, err = e.cancelOnce(ctx, jobID)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("job cancelled", slog.String("job_id", jobID.String()))
	return updated, nil
}

func (e *Engine) cancelOnce(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("engine: cancel: %w", err)
	}

	tr, err := job.NewTransition(j.Status, job.EventCancel)
	if err != nil {
		return nil, fmt.Errorf("engine: cancel: %w", err)
	}

	updated, err := e.store.ApplyTransition(ctx, jobID, tr)
	if err != nil {
		return nil, fmt.Errorf("engine: cancel: %w", err)
	}
	return updated, nil
}
