package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jobline/jobline/hook"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/reconcile"
)

// Compile-time interface checks.
var (
	_ hook.Extension           = (*MetricsExtension)(nil)
	_ hook.JobChanged          = (*MetricsExtension)(nil)
	_ hook.NotificationEmitted = (*MetricsExtension)(nil)
	_ hook.FeedStateChanged    = (*MetricsExtension)(nil)
)

// MetricsExtension records reconciliation metrics via OpenTelemetry.
// Register it as a hook extension to track applied changes by type,
// emitted notifications by level, and change feed degradations.
type MetricsExtension struct {
	changesApplied   metric.Int64Counter
	notifications    metric.Int64Counter
	feedStateChanges metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the given meter.
func NewMetricsExtension(meter metric.Meter) (*MetricsExtension, error) {
	changes, err := meter.Int64Counter("jobline.changes.applied",
		metric.WithDescription("Job changes accepted into the canonical view"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	notifications, err := meter.Int64Counter("jobline.notifications.emitted",
		metric.WithDescription("User-facing notifications derived from transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	feedStates, err := meter.Int64Counter("jobline.feed.state_changes",
		metric.WithDescription("Change feed live/degraded flips"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	return &MetricsExtension{
		changesApplied:   changes,
		notifications:    notifications,
		feedStateChanges: feedStates,
	}, nil
}

// Name implements hook.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobChanged implements hook.JobChanged.
func (m *MetricsExtension) OnJobChanged(ctx context.Context, j *job.Job, change job.ChangeType) error {
	m.changesApplied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("change_type", string(change)),
		attribute.String("status", string(j.Status)),
	))
	return nil
}

// OnNotificationEmitted implements hook.NotificationEmitted.
func (m *MetricsExtension) OnNotificationEmitted(ctx context.Context, n reconcile.Notification) error {
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("level", string(n.Level)),
	))
	return nil
}

// OnFeedStateChanged implements hook.FeedStateChanged.
func (m *MetricsExtension) OnFeedStateChanged(ctx context.Context, live bool) error {
	m.feedStateChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("live", live),
	))
	return nil
}
