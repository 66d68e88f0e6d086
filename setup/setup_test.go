package setup_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
	"github.com/jobline/jobline/setup"
	"github.com/jobline/jobline/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// pingOnlyStore satisfies jobline.Storer but not job.Store.
type pingOnlyStore struct{}

func (pingOnlyStore) Ping(context.Context) error { return nil }
func (pingOnlyStore) Close() error               { return nil }

func TestNewRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := jobline.New(jobline.WithLogger(testLogger()))
	if !errors.Is(err, jobline.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestBuildRequiresJobStore(t *testing.T) {
	t.Parallel()

	tr, err := jobline.New(
		jobline.WithStore(pingOnlyStore{}),
		jobline.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := setup.Build(tr); err == nil {
		t.Fatal("expected error for store without job.Store")
	}
}

func TestStartBeforeBuild(t *testing.T) {
	t.Parallel()

	tr, err := jobline.New(
		jobline.WithStore(memory.New()),
		jobline.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := tr.Start(context.Background()); !errors.Is(err, jobline.ErrNotBuilt) {
		t.Fatalf("err = %v, want ErrNotBuilt", err)
	}
}

func TestBuildAndRun(t *testing.T) {
	t.Parallel()

	st := memory.New()
	tr, err := jobline.New(
		jobline.WithStore(st),
		jobline.WithLogger(testLogger()),
		jobline.WithPollIntervals(20*time.Millisecond, 20*time.Millisecond),
		jobline.WithNotificationHistory(10),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sys, err := setup.Build(tr)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := context.Background()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	j, err := sys.Engine().Create(ctx, job.Spec{
		Type: job.TypeSyncMeetings,
		Name: "sync recent meetings",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The lifecycle flows through to derived notifications: a start and a
	// completion should both surface.
	if _, err := sys.Engine().Begin(ctx, j.ID); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := sys.Engine().Complete(ctx, j.ID, map[string]any{"meetings": 12}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if hasLevel(sys.Reconciler().Notifications(), reconcile.LevelSuccess) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no success notification: %+v", sys.Reconciler().Notifications())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := tr.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Stop closed the store.
	if err := st.Ping(ctx); !errors.Is(err, jobline.ErrStoreClosed) {
		t.Fatalf("ping after stop = %v, want ErrStoreClosed", err)
	}
}

func hasLevel(ns []reconcile.Notification, level reconcile.Level) bool {
	for _, n := range ns {
		if n.Level == level {
			return true
		}
	}
	return false
}
