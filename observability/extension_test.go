package observability_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/observability"
	"github.com/jobline/jobline/reconcile"
)

func newTestExtension(t *testing.T) *observability.MetricsExtension {
	t.Helper()
	e, err := observability.NewMetricsExtension(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsExtension: %v", err)
	}
	return e
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:     id.NewJobID(),
		Name:   "sync-meetings",
		Status: job.StatusRunning,
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Hooks(t *testing.T) {
	e := newTestExtension(t)
	ctx := context.Background()

	if err := e.OnJobChanged(ctx, newTestJob(), job.ChangeModified); err != nil {
		t.Fatalf("OnJobChanged: %v", err)
	}

	jobID := id.NewJobID()
	n := reconcile.Notification{
		ID:     reconcile.NotificationID(jobID, job.StatusCompleted),
		JobID:  jobID,
		Status: job.StatusCompleted,
		Level:  reconcile.LevelSuccess,
	}
	if err := e.OnNotificationEmitted(ctx, n); err != nil {
		t.Fatalf("OnNotificationEmitted: %v", err)
	}

	if err := e.OnFeedStateChanged(ctx, false); err != nil {
		t.Fatalf("OnFeedStateChanged: %v", err)
	}
}
