package reconcile

import (
	"context"
	"log/slog"

	"github.com/jobline/jobline/job"
)

// pollLoop periodically lists jobs from the store and hands the batch to
// the reconciliation goroutine. The interval adapts to what the view
// currently holds: short while any job is pending or running, long once
// everything is terminal. Poll failures are logged and skipped — the feed
// usually still covers the gap, and the next tick retries.
func (r *Reconciler) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		interval := r.idleInterval
		if r.view.AnyActive() {
			interval = r.activeInterval
		}
		if !sleep(ctx, interval) {
			return
		}

		page, err := r.store.ListJobs(ctx, job.Filter{}, job.PageOpts{Page: 1, Size: r.pageSize})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("poll failed", slog.String("error", err.Error()))
			continue
		}

		select {
		case r.in <- update{batch: page.Jobs}:
		case <-ctx.Done():
			return
		}
	}
}
