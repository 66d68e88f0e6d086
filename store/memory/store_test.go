package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

func newPending(t *testing.T, name string) *job.Job {
	t.Helper()
	spec := job.Spec{Type: job.TypeSyncMeetings, Name: name}
	if err := spec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return job.NewFromSpec(spec)
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()
	ctx := context.Background()

	j := newPending(t, "import meetings")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if j.Revision == "" {
		t.Error("CreateJob should stamp a revision")
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Name != "import meetings" || got.Status != job.StatusPending {
		t.Errorf("got %+v", got)
	}

	// The store must hand out copies, not shared pointers.
	got.Name = "mutated"
	again, _ := s.GetJob(ctx, j.ID)
	if again.Name != "import meetings" {
		t.Error("GetJob returned a shared pointer")
	}

	if err := s.CreateJob(ctx, j); !errors.Is(err, jobline.ErrJobAlreadyExists) {
		t.Errorf("duplicate create error = %v, want ErrJobAlreadyExists", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()

	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, jobline.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestListJobsFilterAndPaging(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		j := newPending(t, "sync")
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	done := newPending(t, "done")
	if err := s.CreateJob(ctx, done); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	tr, err := job.NewTransition(job.StatusPending, job.EventCancel)
	if err != nil {
		t.Fatalf("NewTransition: %v", err)
	}
	if _, err := s.ApplyTransition(ctx, done.ID, tr); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}

	page, err := s.ListJobs(ctx, job.Filter{Status: job.StatusPending}, job.PageOpts{Page: 1, Size: 3})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if page.Total != 5 || len(page.Jobs) != 3 || page.Pages != 2 {
		t.Errorf("page = total %d, jobs %d, pages %d; want 5/3/2", page.Total, len(page.Jobs), page.Pages)
	}

	page2, err := s.ListJobs(ctx, job.Filter{Status: job.StatusPending}, job.PageOpts{Page: 2, Size: 3})
	if err != nil {
		t.Fatalf("ListJobs page 2: %v", err)
	}
	if len(page2.Jobs) != 2 {
		t.Errorf("page 2 length = %d, want 2", len(page2.Jobs))
	}

	n, err := s.CountJobs(ctx, job.Filter{Status: job.StatusCancelled})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("cancelled count = %d, want 1", n)
	}
}

func TestListJobsOrdersByPriority(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()
	ctx := context.Background()

	low := newPending(t, "low")
	low.Priority = 1
	high := newPending(t, "high")
	high.Priority = 5
	if err := s.CreateJob(ctx, low); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateJob(ctx, high); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListJobs(ctx, job.Filter{}, job.PageOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if page.Jobs[0].Name != "high" {
		t.Errorf("first job = %s, want high priority first", page.Jobs[0].Name)
	}
}

func TestApplyTransitionConditional(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()
	ctx := context.Background()

	j := newPending(t, "sync")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	start, err := job.NewTransition(job.StatusPending, job.EventStart)
	if err != nil {
		t.Fatal(err)
	}

	running, err := s.ApplyTransition(ctx, j.ID, start)
	if err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if running.Status != job.StatusRunning || running.StartedAt == nil {
		t.Errorf("after start: %+v", running)
	}
	if running.Revision == j.Revision {
		t.Error("transition should mint a fresh revision")
	}
	if !running.UpdatedAt.After(j.UpdatedAt) {
		t.Error("UpdatedAt must advance on every transition")
	}

	// The same claim again loses: the pre-state no longer matches.
	if _, err := s.ApplyTransition(ctx, j.ID, start); !errors.Is(err, jobline.ErrConflict) {
		t.Errorf("second claim error = %v, want ErrConflict", err)
	}

	if _, err := s.ApplyTransition(ctx, id.NewJobID(), start); !errors.Is(err, jobline.ErrJobNotFound) {
		t.Errorf("unknown job error = %v, want ErrJobNotFound", err)
	}
}

func TestWatchJobsDeliversChanges(t *testing.T) {
	t.Parallel()

	s := New()
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.WatchJobs(ctx)
	if err != nil {
		t.Fatalf("WatchJobs: %v", err)
	}

	j := newPending(t, "sync")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-ch:
		if c.Type != job.ChangeAdded || c.ID.String() != j.ID.String() {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	start, _ := job.NewTransition(job.StatusPending, job.EventStart)
	if _, err := s.ApplyTransition(ctx, j.ID, start); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-ch:
		if c.Type != job.ChangeModified || c.Job.Status != job.StatusRunning {
			t.Errorf("change = %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no modification delivered")
	}

	// Cancelling the watch context closes the channel.
	cancel()
	select {
	case _, open := <-ch:
		if open {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestCloseShutsDownWatchers(t *testing.T) {
	t.Parallel()

	s := New()
	ch, err := s.WatchJobs(context.Background())
	if err != nil {
		t.Fatalf("WatchJobs: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, open := <-ch:
		if open {
			t.Error("watcher channel should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("watcher channel not closed")
	}

	if err := s.Ping(context.Background()); !errors.Is(err, jobline.ErrStoreClosed) {
		t.Errorf("Ping after close = %v, want ErrStoreClosed", err)
	}
	if _, err := s.WatchJobs(context.Background()); !errors.Is(err, jobline.ErrStoreClosed) {
		t.Errorf("WatchJobs after close = %v, want ErrStoreClosed", err)
	}
}
