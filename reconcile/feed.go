package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobline/jobline/job"
)

// feedLoop owns the change feed subscription. It normalizes the store's
// raw watch channel into reconciliation inputs, and on any failure
// (subscribe error or unexpected channel close) it flags the view as
// degraded, backs off, and resubscribes. Feed trouble never reaches the
// reconciliation goroutine as anything but a flag change.
func (r *Reconciler) feedLoop(ctx context.Context) {
	defer r.wg.Done()
	defer r.setLive(context.WithoutCancel(ctx), false)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		ch, err := r.store.WatchJobs(ctx)
		if err != nil {
			r.setLive(ctx, false)
			attempt++
			delay := r.resub.Delay(attempt)
			r.logger.Warn("change feed subscribe failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		attempt = 0
		r.setLive(ctx, true)

		if !r.consume(ctx, ch) {
			return
		}

		// The store closed the feed from under us. Degrade and retry.
		r.setLive(ctx, false)
		attempt++
		if !sleep(ctx, r.resub.Delay(attempt)) {
			return
		}
	}
}

// consume forwards feed events until the channel closes or ctx is done.
// It returns false when ctx ended the subscription.
func (r *Reconciler) consume(ctx context.Context, ch <-chan job.Change) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case c, ok := <-ch:
			if !ok {
				return ctx.Err() == nil
			}
			select {
			case r.in <- update{change: c, fromFeed: true}:
			case <-ctx.Done():
				return false
			}
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether to continue.
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
