package reconcile

import (
	"sort"
	"sync"

	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// View is the canonical in-memory view of all observed jobs, keyed by job
// ID. Snapshots stored in the view are immutable; Merge swaps whole
// records under a per-key compare-and-swap loop, so concurrent updates to
// unrelated jobs never serialize against each other.
type View struct {
	entries sync.Map // job ID string → *job.Job
}

// NewView returns an empty view.
func NewView() *View {
	return &View{}
}

// fresher reports whether candidate should replace current under the
// freshness rule: strictly newer UpdatedAt always wins; an equal UpdatedAt
// wins only when the revision token differs, which separates a genuine
// same-tick write from a feed replay of the state we already hold.
func fresher(current, candidate *job.Job) bool {
	if candidate.UpdatedAt.After(current.UpdatedAt) {
		return true
	}
	if candidate.UpdatedAt.Equal(current.UpdatedAt) &&
		candidate.Revision != "" && candidate.Revision != current.Revision {
		return true
	}
	return false
}

// Merge offers a candidate snapshot to the view. It returns the previous
// snapshot (nil if the job was unknown) and whether the candidate was
// accepted. A rejected candidate leaves the view untouched: applying the
// same event twice, or a strictly older poll result, is a no-op.
func (v *View) Merge(j *job.Job) (prev *job.Job, applied bool) {
	key := j.ID.String()
	cp := j.Clone()

	for {
		cur, loaded := v.entries.Load(key)
		if !loaded {
			if _, raced := v.entries.LoadOrStore(key, cp); !raced {
				return nil, true
			}
			// Another goroutine inserted first; re-read and re-evaluate.
			continue
		}

		current := cur.(*job.Job) //nolint:errcheck // the view only stores *job.Job
		if !fresher(current, cp) {
			return current, false
		}
		if v.entries.CompareAndSwap(key, cur, cp) {
			return current, true
		}
		// Lost the swap; re-read and re-evaluate freshness.
	}
}

// Get returns the current snapshot for a job, or false if unknown.
func (v *View) Get(jobID id.JobID) (*job.Job, bool) {
	val, ok := v.entries.Load(jobID.String())
	if !ok {
		return nil, false
	}
	return val.(*job.Job).Clone(), true //nolint:errcheck // the view only stores *job.Job
}

// Remove drops a job from the view, returning the removed snapshot if any.
func (v *View) Remove(jobID id.JobID) (*job.Job, bool) {
	val, ok := v.entries.LoadAndDelete(jobID.String())
	if !ok {
		return nil, false
	}
	return val.(*job.Job), true //nolint:errcheck // the view only stores *job.Job
}

// Snapshot returns all current entries, newest first.
func (v *View) Snapshot() []*job.Job {
	var jobs []*job.Job
	v.entries.Range(func(_, val any) bool {
		jobs = append(jobs, val.(*job.Job)) //nolint:errcheck // the view only stores *job.Job
		return true
	})
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// AnyActive reports whether any observed job is pending or running. The
// poller shortens its interval while this holds.
func (v *View) AnyActive() bool {
	active := false
	v.entries.Range(func(_, val any) bool {
		if val.(*job.Job).Active() { //nolint:errcheck // the view only stores *job.Job
			active = true
			return false
		}
		return true
	})
	return active
}

// Len returns the number of jobs in the view.
func (v *View) Len() int {
	n := 0
	v.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
