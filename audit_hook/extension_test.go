package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	audithook "github.com/jobline/jobline/audit_hook"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// memRecorder collects recorded events for assertions.
type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
	err    error
}

func (r *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *memRecorder) all() []*audithook.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audithook.AuditEvent(nil), r.events...)
}

func mkJob(status job.Status) *job.Job {
	return &job.Job{
		ID:         id.NewJobID(),
		Type:       job.TypeSyncMeetings,
		Status:     status,
		Name:       "sync recent meetings",
		MaxRetries: 3,
	}
}

func TestOnJobChangedActions(t *testing.T) {
	t.Parallel()

	started := time.Now().Add(-2 * time.Second)
	completed := time.Now()

	failedJob := mkJob(job.StatusFailed)
	failedJob.RetryCount = 1
	failedJob.Errors = []job.Error{{Code: "upstream_error", Message: "recording service returned 502"}}

	completedJob := mkJob(job.StatusCompleted)
	completedJob.StartedAt = &started
	completedJob.CompletedAt = &completed

	requeuedJob := mkJob(job.StatusPending)
	requeuedJob.RetryCount = 2

	tests := []struct {
		name     string
		j        *job.Job
		change   job.ChangeType
		action   string
		severity string
		outcome  string
		silent   bool
	}{
		{name: "added", j: mkJob(job.StatusPending), change: job.ChangeAdded,
			action: audithook.ActionJobCreated, severity: audithook.SeverityInfo, outcome: audithook.OutcomeSuccess},
		{name: "started", j: mkJob(job.StatusRunning), change: job.ChangeModified,
			action: audithook.ActionJobStarted, severity: audithook.SeverityInfo, outcome: audithook.OutcomeSuccess},
		{name: "completed", j: completedJob, change: job.ChangeModified,
			action: audithook.ActionJobCompleted, severity: audithook.SeverityInfo, outcome: audithook.OutcomeSuccess},
		{name: "failed", j: failedJob, change: job.ChangeModified,
			action: audithook.ActionJobFailed, severity: audithook.SeverityCritical, outcome: audithook.OutcomeFailure},
		{name: "cancelled", j: mkJob(job.StatusCancelled), change: job.ChangeModified,
			action: audithook.ActionJobCancelled, severity: audithook.SeverityWarning, outcome: audithook.OutcomeSuccess},
		{name: "requeued", j: requeuedJob, change: job.ChangeModified,
			action: audithook.ActionJobRequeued, severity: audithook.SeverityWarning, outcome: audithook.OutcomeSuccess},
		{name: "removed", j: mkJob(job.StatusCompleted), change: job.ChangeRemoved,
			action: audithook.ActionJobRemoved, severity: audithook.SeverityInfo, outcome: audithook.OutcomeSuccess},
		{name: "fresh pending modification is silent", j: mkJob(job.StatusPending), change: job.ChangeModified,
			silent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &memRecorder{}
			ext := audithook.New(rec, audithook.WithLogger(testLogger()))

			if err := ext.OnJobChanged(context.Background(), tt.j, tt.change); err != nil {
				t.Fatalf("OnJobChanged: %v", err)
			}

			events := rec.all()
			if tt.silent {
				if len(events) != 0 {
					t.Fatalf("expected no events, got %+v", events)
				}
				return
			}
			if len(events) != 1 {
				t.Fatalf("len(events) = %d, want 1", len(events))
			}

			evt := events[0]
			if evt.Action != tt.action {
				t.Errorf("action = %q, want %q", evt.Action, tt.action)
			}
			if evt.Severity != tt.severity {
				t.Errorf("severity = %q, want %q", evt.Severity, tt.severity)
			}
			if evt.Outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", evt.Outcome, tt.outcome)
			}
			if evt.Resource != audithook.ResourceJob {
				t.Errorf("resource = %q, want %q", evt.Resource, audithook.ResourceJob)
			}
			if evt.ResourceID != tt.j.ID.String() {
				t.Errorf("resource_id = %q, want %q", evt.ResourceID, tt.j.ID)
			}
		})
	}
}

func TestFailureEventCarriesReason(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithLogger(testLogger()))

	j := mkJob(job.StatusFailed)
	j.Errors = []job.Error{
		{Code: "timeout", Message: "first failure"},
		{Code: "upstream_error", Message: "recording service returned 502"},
	}

	if err := ext.OnJobChanged(context.Background(), j, job.ChangeModified); err != nil {
		t.Fatalf("OnJobChanged: %v", err)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Reason != "recording service returned 502" {
		t.Fatalf("reason = %q, want last error message", events[0].Reason)
	}
	if events[0].Metadata["retry_count"] != 0 {
		t.Fatalf("retry_count = %v, want 0", events[0].Metadata["retry_count"])
	}
}

func TestOnFeedStateChanged(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithLogger(testLogger()))

	ctx := context.Background()
	if err := ext.OnFeedStateChanged(ctx, false); err != nil {
		t.Fatalf("degrade: %v", err)
	}
	if err := ext.OnFeedStateChanged(ctx, true); err != nil {
		t.Fatalf("recover: %v", err)
	}

	events := rec.all()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Action != audithook.ActionFeedDegraded {
		t.Errorf("first action = %q, want %q", events[0].Action, audithook.ActionFeedDegraded)
	}
	if events[0].Severity != audithook.SeverityWarning {
		t.Errorf("degraded severity = %q, want warning", events[0].Severity)
	}
	if events[1].Action != audithook.ActionFeedRecovered {
		t.Errorf("second action = %q, want %q", events[1].Action, audithook.ActionFeedRecovered)
	}
}

func TestWithActionsFilters(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	ext := audithook.New(rec,
		audithook.WithLogger(testLogger()),
		audithook.WithActions(audithook.ActionJobFailed),
	)

	ctx := context.Background()
	if err := ext.OnJobChanged(ctx, mkJob(job.StatusRunning), job.ChangeModified); err != nil {
		t.Fatalf("started: %v", err)
	}
	if err := ext.OnJobChanged(ctx, mkJob(job.StatusFailed), job.ChangeModified); err != nil {
		t.Fatalf("failed: %v", err)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Action != audithook.ActionJobFailed {
		t.Fatalf("action = %q, want %q", events[0].Action, audithook.ActionJobFailed)
	}
}

func TestRecorderErrorsDoNotPropagate(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{err: errors.New("audit backend down")}
	ext := audithook.New(rec, audithook.WithLogger(testLogger()))

	if err := ext.OnJobChanged(context.Background(), mkJob(job.StatusFailed), job.ChangeModified); err != nil {
		t.Fatalf("OnJobChanged should swallow recorder errors, got %v", err)
	}
}

func TestAllActionsCoverage(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, a := range audithook.AllActions() {
		if seen[a] {
			t.Fatalf("duplicate action %q", a)
		}
		seen[a] = true
	}
	if len(seen) != 9 {
		t.Fatalf("len(actions) = %d, want 9", len(seen))
	}
}
