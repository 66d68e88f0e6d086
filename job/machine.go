package job

import (
	"fmt"

	"github.com/jobline/jobline"
)

// Event is an input to the lifecycle state machine.
type Event string

const (
	// EventStart is reported by a worker picking up the job.
	EventStart Event = "start"
	// EventComplete is reported by a worker on success.
	EventComplete Event = "complete"
	// EventFail is reported by a worker on error, or by the timeout watchdog.
	EventFail Event = "fail"
	// EventCancel is a user action.
	EventCancel Event = "cancel"
	// EventRetry resubmits a failed job.
	EventRetry Event = "retry"
)

// Effects are the side effects a transition records on the job. The machine
// returns them; the store applies them. Keeping the two apart makes the
// machine independently testable.
type Effects struct {
	// SetStartedAt stamps StartedAt with the transition time.
	SetStartedAt bool
	// SetCompletedAt stamps CompletedAt with the transition time.
	SetCompletedAt bool
	// ResetProgress zeroes the progress counters for a fresh run.
	ResetProgress bool
	// ResetTimestamps clears StartedAt and CompletedAt.
	ResetTimestamps bool
	// IncrementRetry bumps RetryCount.
	IncrementRetry bool
}

// Next validates an event against the current status and returns the next
// status plus the effects to record. It is pure: no clock, no I/O, no
// hidden state.
//
// Legal edges:
//
//	pending  → running    (start)
//	running  → completed  (complete)
//	running  → failed     (fail)
//	pending  → cancelled  (cancel)
//	running  → cancelled  (cancel)
//	failed   → pending    (retry)
//
// Every other pairing returns ErrInvalidTransition naming the attempted
// edge and the current status.
func Next(current Status, ev Event) (Status, Effects, error) {
	switch ev {
	case EventStart:
		if current == StatusPending {
			return StatusRunning, Effects{SetStartedAt: true, ResetProgress: true}, nil
		}
	case EventComplete:
		if current == StatusRunning {
			return StatusCompleted, Effects{SetCompletedAt: true}, nil
		}
	case EventFail:
		if current == StatusRunning {
			return StatusFailed, Effects{SetCompletedAt: true}, nil
		}
	case EventCancel:
		if current == StatusPending || current == StatusRunning {
			return StatusCancelled, Effects{SetCompletedAt: true}, nil
		}
	case EventRetry:
		if current == StatusFailed {
			return StatusPending, Effects{ResetProgress: true, ResetTimestamps: true, IncrementRetry: true}, nil
		}
	default:
		return current, Effects{}, fmt.Errorf("job: unknown event %q: %w", ev, jobline.ErrInvalidTransition)
	}

	return current, Effects{}, fmt.Errorf("job: event %q not allowed in status %q: %w", ev, current, jobline.ErrInvalidTransition)
}
