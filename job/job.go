package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is waiting to be picked up by a worker.
	StatusPending Status = "pending"
	// StatusRunning means a worker is currently executing the job.
	StatusRunning Status = "running"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed. It may be retried while retries remain.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was explicitly cancelled.
	StatusCancelled Status = "cancelled"
)

// Type is the enumerated kind of work a job performs.
type Type string

const (
	TypeSyncMeetings       Type = "sync_meetings"
	TypeDownloadTranscript Type = "download_transcript"
	TypeDownloadHighlights Type = "download_highlights"
	TypeDownloadVideo      Type = "download_video"
)

// Types lists all known job types.
var Types = []Type{
	TypeSyncMeetings,
	TypeDownloadTranscript,
	TypeDownloadHighlights,
	TypeDownloadVideo,
}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Progress tracks how far a single run of a job has advanced.
// Counts are monotonically non-decreasing within one run and reset to zero
// when a retried job re-enters pending.
type Progress struct {
	CurrentStep    string `json:"current_step,omitempty"`
	TotalSteps     int    `json:"total_steps,omitempty"`
	CompletedSteps int    `json:"completed_steps,omitempty"`
	ProcessedItems int    `json:"processed_items,omitempty"`
	TotalItems     int    `json:"total_items,omitempty"`
}

// StepPercent returns step completion as a percentage, or 0 when unknown.
func (p Progress) StepPercent() float64 {
	if p.TotalSteps == 0 {
		return 0
	}
	return float64(p.CompletedSteps) / float64(p.TotalSteps) * 100
}

// ItemPercent returns item completion as a percentage, or 0 when unknown.
func (p Progress) ItemPercent() float64 {
	if p.TotalItems == 0 {
		return 0
	}
	return float64(p.ProcessedItems) / float64(p.TotalItems) * 100
}

// Percent returns the best available overall percentage: item progress when
// total items are known, step progress otherwise.
func (p Progress) Percent() float64 {
	if p.TotalItems > 0 {
		return p.ItemPercent()
	}
	return p.StepPercent()
}

// Error is one recorded failure. The errors slice on a Job is append-only
// history; retrying never removes past entries.
type Error struct {
	Timestamp  time.Time      `json:"timestamp"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	RetryCount int            `json:"retry_count"`
}

// Job is the persisted unit of state for one tracked background operation.
type Job struct {
	jobline.Entity

	ID          id.JobID       `json:"id"`
	Type        Type           `json:"type"`
	Status      Status         `json:"status"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Priority    int            `json:"priority"`
	Progress    Progress       `json:"progress"`
	Result      map[string]any `json:"result,omitempty"`
	Errors      []Error        `json:"errors,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	RunAt       time.Time      `json:"run_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Terminal reports whether no further transition is permitted except an
// explicit retry. Completed and cancelled are always terminal; failed is
// terminal once retries are exhausted.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusFailed:
		return j.RetryCount >= j.MaxRetries
	default:
		return false
	}
}

// Active reports whether the job is pending or running.
func (j *Job) Active() bool {
	return j.Status == StatusPending || j.Status == StatusRunning
}

// CanRetry reports whether a retry action would be accepted.
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed && j.RetryCount < j.MaxRetries
}

// Duration returns how long the job has been (or was) running, or zero
// before it starts.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// LastError returns the most recent error record, or nil if the job has
// never failed.
func (j *Job) LastError() *Error {
	if len(j.Errors) == 0 {
		return nil
	}
	return &j.Errors[len(j.Errors)-1]
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// without racing against cached records.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Result != nil {
		cp.Result = make(map[string]any, len(j.Result))
		for k, v := range j.Result {
			cp.Result[k] = v
		}
	}
	if j.Config != nil {
		cp.Config = make(map[string]any, len(j.Config))
		for k, v := range j.Config {
			cp.Config[k] = v
		}
	}
	if j.Errors != nil {
		cp.Errors = make([]Error, len(j.Errors))
		copy(cp.Errors, j.Errors)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// DefaultMaxRetries is applied to specs that don't set MaxRetries.
const DefaultMaxRetries = 3

// Spec describes a job to be created. Validate before use.
type Spec struct {
	Type        Type           `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	MaxRetries  int            `json:"max_retries,omitempty"`
}

// Validate checks the spec and normalizes defaults in place.
func (s *Spec) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("job: unknown type %q", s.Type)
	}
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("job: name must not be empty")
	}
	if s.Priority == 0 {
		s.Priority = 1
	}
	if s.Priority < 1 || s.Priority > 5 {
		return fmt.Errorf("job: priority %d out of range [1,5]", s.Priority)
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = DefaultMaxRetries
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("job: max retries must not be negative")
	}
	return nil
}

// NewFromSpec builds a pending Job from a validated spec.
func NewFromSpec(s Spec) *Job {
	now := time.Now().UTC()
	return &Job{
		Entity: jobline.Entity{
			CreatedAt: now,
			UpdatedAt: now,
		},
		ID:          id.NewJobID(),
		Type:        s.Type,
		Status:      StatusPending,
		Name:        s.Name,
		Description: s.Description,
		Priority:    s.Priority,
		Config:      s.Config,
		MaxRetries:  s.MaxRetries,
		RunAt:       now,
	}
}
