package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// Begin claims a pending job for execution, moving it to running and
// stamping StartedAt. A retried job is not claimable before its RunAt
// eligibility time. The conditional write doubles as the claim: if two
// workers race, one gets the job and the other gets ErrConflict.
func (e *Engine) Begin(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("engine: begin: %w", err)
	}
	if t := e.now(); t.Before(j.RunAt) {
		return nil, fmt.Errorf("engine: begin %s: not eligible until %s: %w",
			jobID, j.RunAt.Format(time.RFC3339), jobline.ErrInvalidState)
	}

	tr, err := job.NewTransition(job.StatusPending, job.EventStart)
	if err != nil {
		return nil, fmt.Errorf("engine: begin: %w", err)
	}

	updated, err := e.store.ApplyTransition(ctx, jobID, tr)
	if err != nil {
		return nil, fmt.Errorf("engine: begin: %w", err)
	}

	e.logger.Info("job started", slog.String("job_id", jobID.String()))
	return updated, nil
}

// ReportProgress records a worker's progress on a running job. Unknown
// totals are zero and skip the bound check.
func (e *Engine) ReportProgress(ctx context.Context, jobID id.JobID, p job.Progress) (*job.Job, error) {
	if p.TotalItems > 0 && p.ProcessedItems > p.TotalItems {
		return nil, fmt.Errorf("engine: progress: processed %d exceeds total %d: %w",
			p.ProcessedItems, p.TotalItems, jobline.ErrValidation)
	}
	if p.TotalSteps > 0 && p.CompletedSteps > p.TotalSteps {
		return nil, fmt.Errorf("engine: progress: completed %d exceeds total %d steps: %w",
			p.CompletedSteps, p.TotalSteps, jobline.ErrValidation)
	}

	updated, err := e.store.ApplyTransition(ctx, jobID, job.ProgressTransition(p))
	if err != nil {
		return nil, fmt.Errorf("engine: progress: %w", err)
	}
	return updated, nil
}

// Complete finishes a running job, recording the result payload and
// stamping CompletedAt.
func (e *Engine) Complete(ctx context.Context, jobID id.JobID, result map[string]any) (*job.Job, error) {
	tr, err := job.NewTransition(job.StatusRunning, job.EventComplete)
	if err != nil {
		return nil, fmt.Errorf("engine: complete: %w", err)
	}
	tr.Result = result

	updated, err := e.store.ApplyTransition(ctx, jobID, tr)
	if err != nil {
		return nil, fmt.Errorf("engine: complete: %w", err)
	}

	e.logger.Info("job completed",
		slog.String("job_id", jobID.String()),
		slog.Duration("duration", updated.Duration()),
	)
	return updated, nil
}

// Fail records a worker-reported failure, appending the error record to
// the job's history. The record's RetryCount is stamped with the job's
// current count so the history reads as "attempt N failed because".
func (e *Engine) Fail(ctx context.Context, jobID id.JobID, jobErr job.Error) (*job.Job, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("engine: fail: %w", err)
	}

	tr, err := job.NewTransition(job.StatusRunning, job.EventFail)
	if err != nil {
		return nil, fmt.Errorf("engine: fail: %w", err)
	}
	if jobErr.Timestamp.IsZero() {
		jobErr.Timestamp = e.now()
	}
	jobErr.RetryCount = j.RetryCount
	tr.Error = &jobErr

	updated, err := e.store.ApplyTransition(ctx, jobID, tr)
	if err != nil {
		return nil, fmt.Errorf("engine: fail: %w", err)
	}

	e.logger.Warn("job failed",
		slog.String("job_id", jobID.String()),
		slog.String("code", jobErr.Code),
		slog.String("error", jobErr.Message),
		slog.Int("retry_count", updated.RetryCount),
	)
	return updated, nil
}
