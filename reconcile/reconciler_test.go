package reconcile_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/backoff"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// ── test doubles ─────────────────────────────────────────────────────

type fakeStore struct {
	mu          sync.Mutex
	jobs        map[string]*job.Job
	watch       chan job.Change
	subscribed  chan struct{}
	failWatches int
	transitions []job.Transition
}

var _ job.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:       make(map[string]*job.Job),
		subscribed: make(chan struct{}, 8),
	}
}

func (s *fakeStore) put(j *job.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID.String()] = j.Clone()
}

// emit pushes a raw change onto the current subscription.
func (s *fakeStore) emit(c job.Change) {
	s.mu.Lock()
	ch := s.watch
	s.mu.Unlock()
	ch <- c
}

// dropFeed closes the current subscription, simulating a feed failure.
func (s *fakeStore) dropFeed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.watch)
	s.watch = nil
}

func (s *fakeStore) CreateJob(_ context.Context, j *job.Job) error {
	s.put(j)
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, jobline.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *fakeStore) ListJobs(_ context.Context, _ job.Filter, p job.PageOpts) (*job.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = p.Normalize()
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j.Clone())
	}
	return &job.Page{
		Jobs:     jobs,
		Total:    int64(len(jobs)),
		Page:     p.Page,
		PageSize: p.Size,
		Pages:    job.Pages(int64(len(jobs)), p.Size),
	}, nil
}

func (s *fakeStore) CountJobs(_ context.Context, _ job.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.jobs)), nil
}

func (s *fakeStore) ApplyTransition(_ context.Context, jobID id.JobID, tr job.Transition) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, jobline.ErrJobNotFound
	}
	if j.Status != tr.From {
		return nil, fmt.Errorf("status is %s: %w", j.Status, jobline.ErrConflict)
	}
	job.Apply(j, tr, time.Now().UTC())
	s.transitions = append(s.transitions, tr)
	return j.Clone(), nil
}

func (s *fakeStore) appliedEvents() []job.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := make([]job.Event, 0, len(s.transitions))
	for _, tr := range s.transitions {
		evs = append(evs, tr.Event)
	}
	return evs
}

func (s *fakeStore) WatchJobs(context.Context) (<-chan job.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWatches > 0 {
		s.failWatches--
		return nil, jobline.ErrUpstreamUnavailable
	}
	s.watch = make(chan job.Change, 16)
	s.subscribed <- struct{}{}
	return s.watch, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

type captureEmitter struct {
	changes chan job.ChangeType
	notes   chan reconcile.Notification
	states  chan bool
}

var _ reconcile.Emitter = (*captureEmitter)(nil)

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{
		changes: make(chan job.ChangeType, 64),
		notes:   make(chan reconcile.Notification, 64),
		states:  make(chan bool, 64),
	}
}

func (e *captureEmitter) EmitJobChanged(_ context.Context, _ *job.Job, change job.ChangeType) {
	e.changes <- change
}

func (e *captureEmitter) EmitNotification(_ context.Context, n reconcile.Notification) {
	e.notes <- n
}

func (e *captureEmitter) EmitFeedState(_ context.Context, live bool) {
	e.states <- live
}

func recv[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func expectQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startReconciler(t *testing.T, store job.Store, opts ...reconcile.Option) *reconcile.Reconciler {
	t.Helper()
	r := reconcile.New(store, testLogger(), opts...)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.Stop(ctx); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return r
}

// ── tests ────────────────────────────────────────────────────────────

func TestReconcilerAppliesFeedEvents(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()
	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(time.Hour, time.Hour))

	recv(t, store.subscribed, "subscription")
	recv(t, em.states, "live state")

	pending := mkJob(id.NewJobID(), job.StatusPending, time.Now().UTC(), "r1")
	store.emit(job.Change{ID: pending.ID, Type: job.ChangeAdded, Job: pending})

	if got := recv(t, em.changes, "added event"); got != job.ChangeAdded {
		t.Errorf("change = %s, want added", got)
	}
	// A first sighting never notifies, even when the transport says "added".
	expectQuiet(t, em.notes, "notification")

	running := mkJob(pending.ID, job.StatusRunning, pending.UpdatedAt.Add(time.Second), "r2")
	store.emit(job.Change{ID: running.ID, Type: job.ChangeModified, Job: running})

	if got := recv(t, em.changes, "modified event"); got != job.ChangeModified {
		t.Errorf("change = %s, want modified", got)
	}
	n := recv(t, em.notes, "started notification")
	if n.Level != reconcile.LevelInfo || n.Status != job.StatusRunning {
		t.Errorf("notification = %+v, want info/running", n)
	}

	got, ok := r.View().Get(pending.ID)
	if !ok || got.Status != job.StatusRunning {
		t.Errorf("view = %+v, want running snapshot", got)
	}
}

func TestReconcilerIgnoresReplayedFeedEvents(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()
	startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(time.Hour, time.Hour))

	recv(t, store.subscribed, "subscription")
	recv(t, em.states, "live state")

	j := mkJob(id.NewJobID(), job.StatusRunning, time.Now().UTC(), "r1")
	c := job.Change{ID: j.ID, Type: job.ChangeModified, Job: j}
	store.emit(c)
	recv(t, em.changes, "first delivery")

	// At-least-once delivery: the identical event arrives again.
	store.emit(c)
	expectQuiet(t, em.changes, "replayed event")
}

func TestReconcilerNotifiesOncePerTransition(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()

	pending := mkJob(id.NewJobID(), job.StatusPending, time.Now().UTC(), "r1")
	store.put(pending)

	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(20*time.Millisecond, 20*time.Millisecond))

	recv(t, store.subscribed, "subscription")
	recv(t, em.states, "live state")

	// The completion reaches the reconciler via the feed, and the poll
	// loop re-reads the same state from the store moments later.
	completed := mkJob(pending.ID, job.StatusCompleted, pending.UpdatedAt.Add(time.Second), "r2")
	store.put(completed)
	store.emit(job.Change{ID: completed.ID, Type: job.ChangeModified, Job: completed})

	n := recv(t, em.notes, "completed notification")
	if n.ID != reconcile.NotificationID(completed.ID, job.StatusCompleted) {
		t.Errorf("notification ID = %q", n.ID)
	}

	// Let several poll cycles pass; none may re-emit the transition.
	expectQuiet(t, em.notes, "duplicate notification")
	if got := len(r.Notifications()); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestReconcilerBaselineIsSilent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()

	done := mkJob(id.NewJobID(), job.StatusCompleted, time.Now().UTC().Add(-time.Hour), "r5")
	failed := mkJob(id.NewJobID(), job.StatusFailed, time.Now().UTC().Add(-time.Hour), "r3")
	store.put(done)
	store.put(failed)

	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(time.Hour, time.Hour))

	if got := r.View().Len(); got != 2 {
		t.Fatalf("view length after baseline = %d, want 2", got)
	}
	expectQuiet(t, em.notes, "baseline notification")
	expectQuiet(t, em.changes, "baseline change event")
}

func TestReconcilerStalePollDoesNotRegress(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()
	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(20*time.Millisecond, 20*time.Millisecond))

	recv(t, store.subscribed, "subscription")
	recv(t, em.states, "live state")

	// The store still holds the running snapshot the poller will read.
	jobID := id.NewJobID()
	running := mkJob(jobID, job.StatusRunning, time.Now().UTC().Add(-time.Second), "r1")
	store.put(running)

	// The feed races ahead with the completion.
	completed := mkJob(jobID, job.StatusCompleted, time.Now().UTC(), "r2")
	store.emit(job.Change{ID: jobID, Type: job.ChangeModified, Job: completed})
	recv(t, em.changes, "feed event")

	// Several poll cycles observe the stale running snapshot.
	time.Sleep(100 * time.Millisecond)

	got, ok := r.View().Get(jobID)
	if !ok || got.Status != job.StatusCompleted {
		t.Errorf("view = %+v, want completed", got)
	}
	expectQuiet(t, em.notes, "regression notification")
}

func TestReconcilerDegradesAndRecovers(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()
	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(time.Hour, time.Hour),
		reconcile.WithResubscribeBackoff(backoff.NewConstant(time.Millisecond)))

	recv(t, store.subscribed, "first subscription")
	if live := recv(t, em.states, "live"); !live {
		t.Error("first state should be live")
	}
	if !r.Live() {
		t.Error("Live() = false after subscribe")
	}

	store.dropFeed()
	if live := recv(t, em.states, "degraded"); live {
		t.Error("expected degraded state after feed drop")
	}

	recv(t, store.subscribed, "resubscription")
	if live := recv(t, em.states, "recovered"); !live {
		t.Error("expected live state after resubscribe")
	}
}

func TestReconcilerStartsDegradedWhenWatchUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failWatches = 2
	em := newCaptureEmitter()
	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(time.Hour, time.Hour),
		reconcile.WithResubscribeBackoff(backoff.NewConstant(time.Millisecond)))

	// Failed subscribes keep the initial not-live state; no transition to
	// emit until the feed actually comes up.
	recv(t, store.subscribed, "eventual subscription")
	if live := recv(t, em.states, "live"); !live {
		t.Error("expected live once the watch finally succeeds")
	}
	if !r.Live() {
		t.Error("Live() = false after recovery")
	}
}

func TestReconcilerRemovedEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	em := newCaptureEmitter()
	r := startReconciler(t, store, reconcile.WithEmitter(em),
		reconcile.WithPollIntervals(time.Hour, time.Hour))

	recv(t, store.subscribed, "subscription")
	recv(t, em.states, "live state")

	j := mkJob(id.NewJobID(), job.StatusPending, time.Now().UTC(), "r1")
	store.emit(job.Change{ID: j.ID, Type: job.ChangeAdded, Job: j})
	recv(t, em.changes, "added event")

	store.emit(job.Change{ID: j.ID, Type: job.ChangeRemoved})
	if got := recv(t, em.changes, "removed event"); got != job.ChangeRemoved {
		t.Errorf("change = %s, want removed", got)
	}
	if _, ok := r.View().Get(j.ID); ok {
		t.Error("job still in view after removal")
	}

	// Removal of an unknown job is dropped, not emitted.
	store.emit(job.Change{ID: id.NewJobID(), Type: job.ChangeRemoved})
	expectQuiet(t, em.changes, "unknown removal")
}

func TestReconcilerSweepsStaleRunningJobs(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	stuck := mkJob(id.NewJobID(), job.StatusRunning, time.Now().UTC().Add(-time.Hour), "r1")
	store.put(stuck)

	startReconciler(t, store,
		reconcile.WithPollIntervals(20*time.Millisecond, 20*time.Millisecond),
		reconcile.WithStaleRunningThreshold(time.Minute))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, ev := range store.appliedEvents() {
			if ev == job.EventFail {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watchdog never failed the stale running job")
}

func TestReconcilerDoubleStart(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	r := startReconciler(t, store, reconcile.WithPollIntervals(time.Hour, time.Hour))
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}
