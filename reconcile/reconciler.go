package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/backoff"
	"github.com/jobline/jobline/job"
)

// Emitter receives the reconciler's accepted events. The hook registry
// implements it; the interface lives here so this package stays free of a
// dependency on its consumers.
type Emitter interface {
	EmitJobChanged(ctx context.Context, j *job.Job, change job.ChangeType)
	EmitNotification(ctx context.Context, n Notification)
	EmitFeedState(ctx context.Context, live bool)
}

// nopEmitter is used when no emitter is configured.
type nopEmitter struct{}

func (nopEmitter) EmitJobChanged(context.Context, *job.Job, job.ChangeType) {}
func (nopEmitter) EmitNotification(context.Context, Notification)           {}
func (nopEmitter) EmitFeedState(context.Context, bool)                      {}

// update is one unit of work for the reconciliation goroutine: either a
// single feed delta or a batch of poll results.
type update struct {
	change   job.Change
	batch    []*job.Job
	fromFeed bool
}

// DefaultInputBuffer is the reconciliation channel depth.
const DefaultInputBuffer = 256

// Reconciler merges the change feed and the poller into the canonical
// view. All merging and emitting happens on a single goroutine, so
// downstream consumers observe each job's changes in acceptance order.
type Reconciler struct {
	store   job.Store
	view    *View
	history *History
	emitter Emitter
	logger  *slog.Logger

	resub          backoff.Strategy
	activeInterval time.Duration
	idleInterval   time.Duration
	pageSize       int
	staleThreshold time.Duration

	in   chan update
	live atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithPollIntervals sets the poll cadence: active while any observed job
// is pending or running, idle once everything is terminal.
func WithPollIntervals(active, idle time.Duration) Option {
	return func(r *Reconciler) {
		r.activeInterval = active
		r.idleInterval = idle
	}
}

// WithPageSize sets the number of jobs fetched per poll.
func WithPageSize(n int) Option {
	return func(r *Reconciler) { r.pageSize = n }
}

// WithResubscribeBackoff sets the delay strategy for feed resubscription.
func WithResubscribeBackoff(b backoff.Strategy) Option {
	return func(r *Reconciler) { r.resub = b }
}

// WithNotificationHistory sets the bounded notification retention.
func WithNotificationHistory(limit int) Option {
	return func(r *Reconciler) { r.history = NewHistory(limit) }
}

// WithStaleRunningThreshold enables the watchdog: running jobs whose last
// update is older than the threshold are failed on the next poll sweep.
// Zero disables it.
func WithStaleRunningThreshold(d time.Duration) Option {
	return func(r *Reconciler) { r.staleThreshold = d }
}

// WithEmitter sets the emitter notified of accepted events.
func WithEmitter(e Emitter) Option {
	return func(r *Reconciler) { r.emitter = e }
}

// New creates a Reconciler over the given store.
func New(store job.Store, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:          store,
		view:           NewView(),
		history:        NewHistory(100),
		emitter:        nopEmitter{},
		logger:         logger,
		resub:          backoff.DefaultResubscribe(),
		activeInterval: 3 * time.Second,
		idleInterval:   30 * time.Second,
		pageSize:       200,
		in:             make(chan update, DefaultInputBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// View returns the canonical view.
func (r *Reconciler) View() *View { return r.view }

// Notifications returns the retained notification history, newest first.
func (r *Reconciler) Notifications() []Notification { return r.history.List() }

// Live reports whether the change feed is currently delivering. False
// means the reconciler has degraded to poll-only mode.
func (r *Reconciler) Live() bool { return r.live.Load() }

// Start seeds the baseline and launches the feed, poll, and reconciliation
// goroutines. The baseline is applied silently: jobs that reached a
// terminal state before anyone was watching must not greet the first
// observer with a burst of stale notifications.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("reconcile: already started")
	}
	r.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	if err := r.baseline(ctx); err != nil {
		// Degraded start: the poll loop will recover once the store does.
		r.logger.Warn("baseline poll failed, starting degraded",
			slog.String("error", err.Error()),
		)
	}

	r.wg.Add(3)
	go r.feedLoop(runCtx)
	go r.pollLoop(runCtx)
	go r.run(runCtx)
	return nil
}

// Stop cancels the loops and waits for them, bounded by ctx.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reconcile: stop: %w", ctx.Err())
	}
}

// baseline seeds the view from a first poll without emitting.
func (r *Reconciler) baseline(ctx context.Context) error {
	page, err := r.store.ListJobs(ctx, job.Filter{}, job.PageOpts{Page: 1, Size: r.pageSize})
	if err != nil {
		return fmt.Errorf("reconcile: baseline: %w", err)
	}
	for _, j := range page.Jobs {
		r.view.Merge(j)
	}
	r.logger.Info("baseline seeded", slog.Int("jobs", len(page.Jobs)))
	return nil
}

// run is the single reconciliation goroutine.
func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-r.in:
			if u.fromFeed {
				r.applyChange(ctx, u.change)
				continue
			}
			for _, j := range u.batch {
				r.applyJob(ctx, j)
			}
			r.sweepStale(ctx)
		}
	}
}

// applyChange handles one normalized feed event.
func (r *Reconciler) applyChange(ctx context.Context, c job.Change) {
	if c.Type == job.ChangeRemoved {
		if last, ok := r.view.Remove(c.ID); ok {
			r.emitter.EmitJobChanged(ctx, last, job.ChangeRemoved)
		}
		return
	}
	if c.Job == nil {
		return
	}
	r.applyJob(ctx, c.Job)
}

// applyJob offers a snapshot to the view and, when accepted, emits the
// change and any derived notification. The change type is normalized from
// the view's own knowledge rather than trusted from the transport: a poll
// can discover a job the feed never delivered, and a feed "added" replay
// for a known job is just a modification attempt.
func (r *Reconciler) applyJob(ctx context.Context, j *job.Job) {
	prev, applied := r.view.Merge(j)
	if !applied {
		return
	}

	change := job.ChangeModified
	if prev == nil {
		change = job.ChangeAdded
	}
	r.emitter.EmitJobChanged(ctx, j, change)

	if n, ok := Derive(prev, j); ok && r.history.Add(n) {
		r.emitter.EmitNotification(ctx, n)
	}
}

// sweepStale fails running jobs whose last update is older than the
// watchdog threshold. The failure goes through the ordinary conditional
// transition, so a worker that reports in concurrently wins the race and
// the sweep's write loses with a conflict.
func (r *Reconciler) sweepStale(ctx context.Context) {
	if r.staleThreshold <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-r.staleThreshold)
	for _, j := range r.view.Snapshot() {
		if j.Status != job.StatusRunning || !j.UpdatedAt.Before(cutoff) {
			continue
		}

		tr, err := job.NewTransition(job.StatusRunning, job.EventFail)
		if err != nil {
			continue
		}
		tr.Error = &job.Error{
			Timestamp:  time.Now().UTC(),
			Code:       "watchdog_timeout",
			Message:    fmt.Sprintf("no progress for %s", r.staleThreshold),
			RetryCount: j.RetryCount,
		}

		if _, err := r.store.ApplyTransition(ctx, j.ID, tr); err != nil {
			if errors.Is(err, jobline.ErrConflict) || errors.Is(err, jobline.ErrJobNotFound) {
				continue
			}
			r.logger.Warn("watchdog transition failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.logger.Info("watchdog failed stale job",
			slog.String("job_id", j.ID.String()),
			slog.Duration("threshold", r.staleThreshold),
		)
	}
}

// setLive flips the live flag, emitting only on an actual change.
func (r *Reconciler) setLive(ctx context.Context, live bool) {
	if r.live.Swap(live) == live {
		return
	}
	if live {
		r.logger.Info("change feed connected, live updates enabled")
	} else {
		r.logger.Warn("change feed unavailable, degraded to poll-only mode")
	}
	r.emitter.EmitFeedState(ctx, live)
}
