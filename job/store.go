package job

import (
	"context"
	"time"

	"github.com/jobline/jobline/id"
)

// Filter narrows list and count queries. Zero values match everything.
type Filter struct {
	// Status filters by lifecycle status.
	Status Status
	// Type filters by job type.
	Type Type
}

// PageOpts controls pagination for list queries. Page numbers are 1-based.
type PageOpts struct {
	Page int
	Size int
}

// Normalize clamps page options to usable values.
func (p PageOpts) Normalize() PageOpts {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = 50
	}
	return p
}

// Offset returns the number of records to skip.
func (p PageOpts) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Size
}

// Page is one page of a job listing.
type Page struct {
	Jobs     []*Job `json:"jobs"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Pages    int    `json:"pages"`
}

// ChangeType classifies a change feed event.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one raw event from the store's subscription primitive.
// Delivery is best-effort and at-least-once: events may arrive duplicated
// or out of order, and consumers must tolerate both. Job is nil for
// ChangeRemoved.
type Change struct {
	ID   id.JobID
	Type ChangeType
	Job  *Job
}

// Transition is a conditional mutation of one job. From is the expected
// pre-state: if the stored status no longer matches, ApplyTransition fails
// with jobline.ErrConflict instead of overwriting. Event and Effects come
// from the state machine; the payload fields carry what the effects record.
type Transition struct {
	From    Status
	To      Status
	Event   Event
	Effects Effects

	// Progress, when non-nil, replaces the stored progress. Used both for
	// running→running progress reports and pending→running resets.
	Progress *Progress

	// Result is set on completion. Opaque to the engine.
	Result map[string]any

	// Error, when non-nil, is appended to the job's error history.
	Error *Error

	// RunAt, when non-zero, reschedules the job's eligibility (retry delay).
	RunAt time.Time
}

// ProgressTransition models a progress report as a running→running
// transition with no event; the store still checks the pre-state so a
// report racing a cancellation loses with a conflict.
func ProgressTransition(p Progress) Transition {
	return Transition{From: StatusRunning, To: StatusRunning, Progress: &p}
}

// NewTransition builds a Transition by running the state machine.
func NewTransition(current Status, ev Event) (Transition, error) {
	next, effects, err := Next(current, ev)
	if err != nil {
		return Transition{}, err
	}
	return Transition{From: current, To: next, Event: ev, Effects: effects}, nil
}

// Store defines the persistence contract for jobs. The store is the single
// source of truth; per-job mutual exclusion is provided solely by
// ApplyTransition's conditional write.
type Store interface {
	// CreateJob persists a new job in pending state.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns one page of jobs matching the filter, newest first.
	ListJobs(ctx context.Context, f Filter, p PageOpts) (*Page, error)

	// CountJobs returns the number of jobs matching the filter.
	CountJobs(ctx context.Context, f Filter) (int64, error)

	// ApplyTransition conditionally mutates a job. It fails with
	// jobline.ErrJobNotFound if the job is absent and jobline.ErrConflict
	// if the stored status differs from tr.From. On success it returns the
	// updated record with a fresh revision and an UpdatedAt strictly after
	// the previous one, at whatever precision the backend's encoding
	// round-trips.
	ApplyTransition(ctx context.Context, jobID id.JobID, tr Transition) (*Job, error)

	// WatchJobs subscribes to the store's change feed. The returned channel
	// is closed when ctx is cancelled or the feed fails; callers own
	// resubscription. Events are best-effort and at-least-once.
	WatchJobs(ctx context.Context) (<-chan Change, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// Apply mutates j in place according to tr, stamping now as the transition
// time. It is the shared write path for all store backends, so every
// backend records identical effects.
func Apply(j *Job, tr Transition, now time.Time) {
	j.Status = tr.To
	j.UpdatedAt = now

	if tr.Effects.SetStartedAt {
		t := now
		j.StartedAt = &t
	}
	if tr.Effects.SetCompletedAt {
		t := now
		j.CompletedAt = &t
	}
	if tr.Effects.ResetTimestamps {
		j.StartedAt = nil
		j.CompletedAt = nil
	}
	if tr.Effects.ResetProgress {
		j.Progress = Progress{}
	}
	if tr.Effects.IncrementRetry {
		j.RetryCount++
	}
	if tr.Progress != nil {
		j.Progress = *tr.Progress
	}
	if tr.Result != nil {
		j.Result = tr.Result
	}
	if tr.Error != nil {
		j.Errors = append(j.Errors, *tr.Error)
	}
	if !tr.RunAt.IsZero() {
		j.RunAt = tr.RunAt
	}
}

// Pages computes the page count for a total at the given page size.
func Pages(total int64, size int) int {
	if size < 1 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
