package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobline/jobline/hook"
	"github.com/jobline/jobline/job"
)

// Compile-time interface checks.
var (
	_ hook.Extension        = (*Extension)(nil)
	_ hook.JobChanged       = (*Extension)(nil)
	_ hook.FeedStateChanged = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so this package does not depend on any concrete
// audit store — callers inject their backend at wiring time.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges reconciled lifecycle events to an audit trail backend.
// Because it observes changes after reconciliation, each transition is
// audited at most once no matter how many delivery paths carried it.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements hook.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobChanged implements hook.JobChanged. The audit action is derived
// from the change type and the status the job arrived in.
func (e *Extension) OnJobChanged(ctx context.Context, j *job.Job, change job.ChangeType) error {
	action, severity, outcome := classify(j, change)
	if action == "" {
		return nil
	}

	kv := []any{
		"job_name", j.Name,
		"job_type", string(j.Type),
		"status", string(j.Status),
	}
	var reason error
	switch action {
	case ActionJobFailed:
		kv = append(kv, "retry_count", j.RetryCount, "max_retries", j.MaxRetries)
		if lastErr := j.LastError(); lastErr != nil {
			reason = fmt.Errorf("%s", lastErr.Message)
		}
	case ActionJobRequeued:
		kv = append(kv, "retry_count", j.RetryCount)
	case ActionJobCompleted:
		if d := j.Duration(); d > 0 {
			kv = append(kv, "elapsed_ms", d.Milliseconds())
		}
	}

	return e.record(ctx, action, severity, outcome,
		ResourceJob, j.ID.String(), CategoryJob, reason, kv...)
}

// classify maps a reconciled change to an audit action. A modified job
// still pending with no retries has no meaningful edge to audit.
func classify(j *job.Job, change job.ChangeType) (action, severity, outcome string) {
	switch change {
	case job.ChangeAdded:
		return ActionJobCreated, SeverityInfo, OutcomeSuccess
	case job.ChangeRemoved:
		return ActionJobRemoved, SeverityInfo, OutcomeSuccess
	}

	switch j.Status {
	case job.StatusRunning:
		return ActionJobStarted, SeverityInfo, OutcomeSuccess
	case job.StatusCompleted:
		return ActionJobCompleted, SeverityInfo, OutcomeSuccess
	case job.StatusFailed:
		return ActionJobFailed, SeverityCritical, OutcomeFailure
	case job.StatusCancelled:
		return ActionJobCancelled, SeverityWarning, OutcomeSuccess
	case job.StatusPending:
		if j.RetryCount > 0 {
			return ActionJobRequeued, SeverityWarning, OutcomeSuccess
		}
	}
	return "", "", ""
}

// ── Feed state hooks ────────────────────────────────

// OnFeedStateChanged implements hook.FeedStateChanged.
func (e *Extension) OnFeedStateChanged(ctx context.Context, live bool) error {
	if live {
		return e.record(ctx, ActionFeedRecovered, SeverityInfo, OutcomeSuccess,
			ResourceFeed, "", CategoryFeed, nil)
	}
	return e.record(ctx, ActionFeedDegraded, SeverityWarning, OutcomeFailure,
		ResourceFeed, "", CategoryFeed, nil)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
