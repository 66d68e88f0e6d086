// Package hook defines the extension system for Jobline.
// Extensions are notified of reconciled lifecycle events (a job change
// accepted into the canonical view, a derived notification, the live feed
// degrading or recovering) and can react to them: streaming, metrics,
// audit, etc.
//
// Each hook is a separate interface so extensions opt in only to the
// events they care about.
package hook

import (
	"context"

	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobChanged is called after the reconciler accepts a change into the
// canonical view. Rejected (stale or duplicate) updates never reach this
// hook, so implementations see each transition at most once.
type JobChanged interface {
	OnJobChanged(ctx context.Context, j *job.Job, change job.ChangeType) error
}

// NotificationEmitted is called when a state transition derives a new
// user-facing notification.
type NotificationEmitted interface {
	OnNotificationEmitted(ctx context.Context, n reconcile.Notification) error
}

// FeedStateChanged is called when the change feed degrades to poll-only
// mode (live=false) or recovers (live=true).
type FeedStateChanged interface {
	OnFeedStateChanged(ctx context.Context, live bool) error
}

// Shutdown is called once when the tracker stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
