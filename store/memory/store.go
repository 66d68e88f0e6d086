// Package memory provides a fully in-memory job store. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// Ensure Store implements job.Store at compile time.
var _ job.Store = (*Store)(nil)

// Store holds all jobs in a map guarded by one RWMutex. The change feed
// is a fan-out to buffered watcher channels; a watcher that falls behind
// loses events rather than blocking writers, which is fine for consumers
// that also poll.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*job.Job
	watchers  map[int]chan job.Change
	nextWatch int
	closed    bool
	done      chan struct{}
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]*job.Job),
		watchers: make(map[int]chan job.Change),
		done:     make(chan struct{}),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Ping reports whether the store is usable.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return jobline.ErrStoreClosed
	}
	return nil
}

// Close shuts down the store and closes all watcher channels.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	for key, ch := range m.watchers {
		close(ch)
		delete(m.watchers, key)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

// CreateJob persists a new job and announces it on the change feed.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return jobline.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return fmt.Errorf("memory: create %s: %w", key, jobline.ErrJobAlreadyExists)
	}

	cp := j.Clone()
	cp.Revision = uuid.NewString()
	m.jobs[key] = cp
	j.Revision = cp.Revision

	m.broadcast(job.Change{ID: cp.ID, Type: job.ChangeAdded, Job: cp.Clone()})
	return nil
}

// GetJob returns a copy of the job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, jobline.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, fmt.Errorf("memory: get %s: %w", jobID, jobline.ErrJobNotFound)
	}
	return j.Clone(), nil
}

// ListJobs returns a page of jobs matching the filter, ordered by
// priority (highest first) and then recency.
func (m *Store) ListJobs(_ context.Context, f job.Filter, p job.PageOpts) (*job.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, jobline.ErrStoreClosed
	}

	matched := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if matches(j, f) {
			matched = append(matched, j)
		}
	}
	sort.Slice(matched, func(i, k int) bool {
		if matched[i].Priority != matched[k].Priority {
			return matched[i].Priority > matched[k].Priority
		}
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})

	p = p.Normalize()
	total := int64(len(matched))

	start := p.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + p.Size
	if end > len(matched) {
		end = len(matched)
	}

	jobs := make([]*job.Job, 0, end-start)
	for _, j := range matched[start:end] {
		jobs = append(jobs, j.Clone())
	}

	return &job.Page{
		Jobs:     jobs,
		Total:    total,
		Page:     p.Page,
		PageSize: p.Size,
		Pages:    job.Pages(total, p.Size),
	}, nil
}

// CountJobs returns the number of jobs matching the filter.
func (m *Store) CountJobs(_ context.Context, f job.Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, jobline.ErrStoreClosed
	}

	var n int64
	for _, j := range m.jobs {
		if matches(j, f) {
			n++
		}
	}
	return n, nil
}

// ApplyTransition performs the conditional write. The stored status must
// still equal tr.From; otherwise the caller lost a race and gets
// jobline.ErrConflict with the current status in the message.
func (m *Store) ApplyTransition(_ context.Context, jobID id.JobID, tr job.Transition) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, jobline.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, fmt.Errorf("memory: transition %s: %w", jobID, jobline.ErrJobNotFound)
	}
	if j.Status != tr.From {
		return nil, fmt.Errorf("memory: transition %s: expected %s, is %s: %w",
			jobID, tr.From, j.Status, jobline.ErrConflict)
	}

	now := time.Now().UTC()
	// UpdatedAt must be strictly monotonic per job; the reconciler's
	// freshness rule depends on it.
	if !now.After(j.UpdatedAt) {
		now = j.UpdatedAt.Add(time.Microsecond)
	}

	cp := j.Clone()
	job.Apply(cp, tr, now)
	cp.Revision = uuid.NewString()
	m.jobs[jobID.String()] = cp

	m.broadcast(job.Change{ID: cp.ID, Type: job.ChangeModified, Job: cp.Clone()})
	return cp.Clone(), nil
}

func matches(j *job.Job, f job.Filter) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Type != "" && j.Type != f.Type {
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Change feed
// ──────────────────────────────────────────────────

const watchBuffer = 64

// WatchJobs subscribes to the change feed. The channel closes when ctx
// is cancelled or the store closes.
func (m *Store) WatchJobs(ctx context.Context) (<-chan job.Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory: watch: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, jobline.ErrStoreClosed
	}
	key := m.nextWatch
	m.nextWatch++
	ch := make(chan job.Change, watchBuffer)
	m.watchers[key] = ch
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.done:
			return // Close already shut the channel down.
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[key]; ok {
			delete(m.watchers, key)
			close(ch)
		}
	}()

	return ch, nil
}

// broadcast delivers a change to every watcher without blocking. Caller
// holds m.mu.
func (m *Store) broadcast(c job.Change) {
	for _, ch := range m.watchers {
		select {
		case ch <- c:
		default:
			// Watcher is full; drop. The poll path repairs the gap.
		}
	}
}
