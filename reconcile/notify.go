package reconcile

import (
	"fmt"
	"sync"
	"time"

	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

// Level classifies a notification for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a user-facing message derived from a state transition.
//
// The ID is deterministic, derived from the job ID and the status entered,
// so re-delivery of the same transition through a second path (feed
// replay, overlapping poll) deduplicates by identity rather than by timing.
type Notification struct {
	ID        string     `json:"id"`
	JobID     id.JobID   `json:"job_id"`
	Status    job.Status `json:"status"`
	Level     Level      `json:"level"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// NotificationID builds the deterministic identity for a transition.
func NotificationID(jobID id.JobID, status job.Status) string {
	return jobID.String() + ":" + string(status)
}

// Derive returns the notification for an accepted change, if the
// transition warrants one. prev is the view's snapshot before the change;
// a nil prev means the job was first observed by this change (baseline or
// newly created), which never notifies. That is what keeps a page load
// from flooding observers with "completed" messages for jobs that
// finished long before they connected.
func Derive(prev, next *job.Job) (Notification, bool) {
	if prev == nil || prev.Status == next.Status {
		return Notification{}, false
	}

	n := Notification{
		ID:        NotificationID(next.ID, next.Status),
		JobID:     next.ID,
		Status:    next.Status,
		Timestamp: next.UpdatedAt,
	}

	switch next.Status {
	case job.StatusCompleted:
		n.Level = LevelSuccess
		n.Message = fmt.Sprintf("%s completed", next.Name)
	case job.StatusFailed:
		n.Level = LevelError
		n.Message = fmt.Sprintf("%s failed", next.Name)
		if lastErr := next.LastError(); lastErr != nil {
			n.Message = fmt.Sprintf("%s failed: %s", next.Name, lastErr.Message)
		}
	case job.StatusRunning:
		if prev.Status != job.StatusPending {
			return Notification{}, false
		}
		n.Level = LevelInfo
		n.Message = fmt.Sprintf("%s started", next.Name)
	default:
		return Notification{}, false
	}

	return n, true
}

// History retains the most recent notifications, bounded, evicting
// first-in-first-out. Adding a notification whose identity is already
// present is rejected, so a transition observed via both feed and poll
// lands exactly once.
type History struct {
	mu    sync.Mutex
	limit int
	order []string
	byID  map[string]Notification
}

// NewHistory creates a history retaining at most limit notifications.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = 1
	}
	return &History{
		limit: limit,
		byID:  make(map[string]Notification, limit),
	}
}

// Add inserts a notification. It returns false if the identity was already
// present. When the bound is exceeded, the oldest entry is evicted; its
// identity leaves the dedup set with it, which bounds memory at the cost
// of readmitting a very old replay.
func (h *History) Add(n Notification) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, dup := h.byID[n.ID]; dup {
		return false
	}

	h.byID[n.ID] = n
	h.order = append(h.order, n.ID)

	for len(h.order) > h.limit {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.byID, oldest)
	}
	return true
}

// List returns retained notifications, newest first.
func (h *History) List() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Notification, 0, len(h.order))
	for i := len(h.order) - 1; i >= 0; i-- {
		out = append(out, h.byID[h.order[i]])
	}
	return out
}

// Len returns the number of retained notifications.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}
