package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
)

// BulkAction names an action applied across a set of jobs.
type BulkAction string

const (
	BulkRetry  BulkAction = "retry"
	BulkCancel BulkAction = "cancel"
)

// Valid reports whether the action is known.
func (a BulkAction) Valid() bool {
	return a == BulkRetry || a == BulkCancel
}

// BulkItem is the outcome for one job in a bulk action.
type BulkItem struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkResult aggregates the per-item outcomes of a bulk action.
type BulkResult struct {
	Action     BulkAction `json:"action"`
	Total      int        `json:"total_jobs"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Results    []BulkItem `json:"results"`
}

// Bulk applies the action to each job independently. There is no
// atomicity across the set: a failure on one ID is recorded in its item
// and the rest proceed. The only whole-request error is an unknown
// action.
func (e *Engine) Bulk(ctx context.Context, action BulkAction, jobIDs []id.JobID) (*BulkResult, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("engine: bulk: unknown action %q: %w", action, jobline.ErrValidation)
	}

	res := &BulkResult{
		Action:  action,
		Total:   len(jobIDs),
		Results: make([]BulkItem, 0, len(jobIDs)),
	}

	for _, jobID := range jobIDs {
		var err error
		switch action {
		case BulkRetry:
			_, err = e.Retry(ctx, jobID)
		case BulkCancel:
			_, err = e.Cancel(ctx, jobID)
		}

		item := BulkItem{JobID: jobID.String(), Success: err == nil}
		if err != nil {
			item.Error = err.Error()
			res.Failed++
		} else {
			res.Successful++
		}
		res.Results = append(res.Results, item)
	}

	e.logger.Info("bulk action applied",
		slog.String("action", string(action)),
		slog.Int("total", res.Total),
		slog.Int("successful", res.Successful),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}
