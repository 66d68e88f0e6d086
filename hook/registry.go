package hook

import (
	"context"
	"log/slog"

	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobChangedEntry struct {
	name string
	hook JobChanged
}

type notificationEntry struct {
	name string
	hook NotificationEmitted
}

type feedStateEntry struct {
	name string
	hook FeedStateChanged
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches reconciled events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// A hook error never propagates to the reconciler; it is logged and the
// remaining extensions still run.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobChanged   []jobChangedEntry
	notification []notificationEntry
	feedState    []feedStateEntry
	shutdown     []shutdownEntry
}

// Compile-time check: the registry satisfies the reconciler's emitter
// contract.
var _ reconcile.Emitter = (*Registry)(nil)

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobChanged); ok {
		r.jobChanged = append(r.jobChanged, jobChangedEntry{name, h})
	}
	if h, ok := e.(NotificationEmitted); ok {
		r.notification = append(r.notification, notificationEntry{name, h})
	}
	if h, ok := e.(FeedStateChanged); ok {
		r.feedState = append(r.feedState, feedStateEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobChanged notifies all extensions that implement JobChanged.
func (r *Registry) EmitJobChanged(ctx context.Context, j *job.Job, change job.ChangeType) {
	for _, e := range r.jobChanged {
		if err := e.hook.OnJobChanged(ctx, j, change); err != nil {
			r.logHookError("OnJobChanged", e.name, err)
		}
	}
}

// EmitNotification notifies all extensions that implement NotificationEmitted.
func (r *Registry) EmitNotification(ctx context.Context, n reconcile.Notification) {
	for _, e := range r.notification {
		if err := e.hook.OnNotificationEmitted(ctx, n); err != nil {
			r.logHookError("OnNotificationEmitted", e.name, err)
		}
	}
}

// EmitFeedState notifies all extensions that implement FeedStateChanged.
func (r *Registry) EmitFeedState(ctx context.Context, live bool) {
	for _, e := range r.feedState {
		if err := e.hook.OnFeedStateChanged(ctx, live); err != nil {
			r.logHookError("OnFeedStateChanged", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Error("extension hook failed",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
