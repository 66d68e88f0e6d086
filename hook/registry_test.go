package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/jobline/jobline/hook"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// recordingExt implements every hook and records what it saw.
type recordingExt struct {
	name          string
	jobChanges    []job.ChangeType
	notifications []reconcile.Notification
	feedStates    []bool
	shutdowns     int
	err           error
}

func (r *recordingExt) Name() string { return r.name }

func (r *recordingExt) OnJobChanged(_ context.Context, _ *job.Job, change job.ChangeType) error {
	r.jobChanges = append(r.jobChanges, change)
	return r.err
}

func (r *recordingExt) OnNotificationEmitted(_ context.Context, n reconcile.Notification) error {
	r.notifications = append(r.notifications, n)
	return r.err
}

func (r *recordingExt) OnFeedStateChanged(_ context.Context, live bool) error {
	r.feedStates = append(r.feedStates, live)
	return r.err
}

func (r *recordingExt) OnShutdown(context.Context) error {
	r.shutdowns++
	return r.err
}

// shutdownOnlyExt implements only the base and shutdown interfaces.
type shutdownOnlyExt struct {
	shutdowns int
}

func (s *shutdownOnlyExt) Name() string { return "shutdown-only" }

func (s *shutdownOnlyExt) OnShutdown(context.Context) error {
	s.shutdowns++
	return nil
}

func TestRegistryDispatchesByImplementedHooks(t *testing.T) {
	t.Parallel()

	reg := hook.NewRegistry(testLogger())
	full := &recordingExt{name: "full"}
	partial := &shutdownOnlyExt{}
	reg.Register(full)
	reg.Register(partial)

	ctx := context.Background()
	j := &job.Job{ID: id.NewJobID(), Status: job.StatusRunning, Name: "sync"}

	reg.EmitJobChanged(ctx, j, job.ChangeModified)
	reg.EmitNotification(ctx, reconcile.Notification{ID: "n1", Level: reconcile.LevelInfo})
	reg.EmitFeedState(ctx, false)
	reg.EmitShutdown(ctx)

	if len(full.jobChanges) != 1 || full.jobChanges[0] != job.ChangeModified {
		t.Fatalf("jobChanges = %v", full.jobChanges)
	}
	if len(full.notifications) != 1 || full.notifications[0].ID != "n1" {
		t.Fatalf("notifications = %v", full.notifications)
	}
	if len(full.feedStates) != 1 || full.feedStates[0] {
		t.Fatalf("feedStates = %v", full.feedStates)
	}
	if full.shutdowns != 1 {
		t.Fatalf("full shutdowns = %d", full.shutdowns)
	}
	if partial.shutdowns != 1 {
		t.Fatalf("partial shutdowns = %d", partial.shutdowns)
	}

	if got := len(reg.Extensions()); got != 2 {
		t.Fatalf("len(extensions) = %d, want 2", got)
	}
}

func TestRegistryHookErrorsDoNotStopOthers(t *testing.T) {
	t.Parallel()

	reg := hook.NewRegistry(testLogger())
	failing := &recordingExt{name: "failing", err: errors.New("hook exploded")}
	healthy := &recordingExt{name: "healthy"}
	reg.Register(failing)
	reg.Register(healthy)

	ctx := context.Background()
	j := &job.Job{ID: id.NewJobID(), Status: job.StatusCompleted, Name: "sync"}

	reg.EmitJobChanged(ctx, j, job.ChangeModified)
	reg.EmitShutdown(ctx)

	if len(healthy.jobChanges) != 1 {
		t.Fatalf("healthy extension skipped after failing one: %v", healthy.jobChanges)
	}
	if healthy.shutdowns != 1 {
		t.Fatalf("healthy shutdowns = %d, want 1", healthy.shutdowns)
	}
}
