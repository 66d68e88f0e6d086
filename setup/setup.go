// Package setup wires all jobline subsystems together. It creates the
// engine, extension registry, stream broker, and reconciler, and plugs
// them back into the Tracker.
//
// This package exists to break the import cycle: the root jobline package
// defines Entity and the error taxonomy (imported by job, reconcile, etc.)
// and so cannot import those packages back. The setup package sits above
// all subsystem packages and below the application layer.
package setup

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/api"
	"github.com/jobline/jobline/backoff"
	"github.com/jobline/jobline/engine"
	"github.com/jobline/jobline/hook"
	"github.com/jobline/jobline/job"
	"github.com/jobline/jobline/observability"
	"github.com/jobline/jobline/reconcile"
	"github.com/jobline/jobline/stream"
)

// System bundles a built Tracker with typed subsystem access.
// Use Build() to create one.
type System struct {
	tracker    *jobline.Tracker
	eng        *engine.Engine
	rec        *reconcile.Reconciler
	broker     *stream.Broker
	extensions *hook.Registry

	retry         backoff.Strategy
	extraExts     []hook.Extension
	meterProvider metric.MeterProvider
}

// Option configures a System during Build.
type Option func(*System)

// WithRetryBackoff sets the delay strategy applied to retried jobs.
// Defaults to backoff.DefaultRetry() (exponential with jitter).
func WithRetryBackoff(b backoff.Strategy) Option {
	return func(s *System) { s.retry = b }
}

// WithExtension registers an additional extension alongside the built-in
// stream broker and metrics extensions.
func WithExtension(e hook.Extension) Option {
	return func(s *System) { s.extraExts = append(s.extraExts, e) }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// extension. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *System) { s.meterProvider = mp }
}

// Build wires the subsystems onto an existing Tracker. The Tracker's
// store must implement job.Store.
func Build(t *jobline.Tracker, opts ...Option) (*System, error) {
	logger := t.Logger()

	store := t.Store()
	if store == nil {
		return nil, jobline.ErrNoStore
	}
	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("setup: store does not implement job.Store")
	}

	s := &System{tracker: t}
	for _, opt := range opts {
		opt(s)
	}

	engOpts := []engine.Option{}
	if s.retry != nil {
		engOpts = append(engOpts, engine.WithRetryBackoff(s.retry))
	}
	s.eng = engine.New(js, logger, engOpts...)

	s.extensions = hook.NewRegistry(logger)
	s.broker = stream.NewBroker(logger)
	s.extensions.Register(s.broker)

	mp := s.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	obsExt, err := observability.NewMetricsExtension(mp.Meter("github.com/jobline/jobline"))
	if err != nil {
		return nil, fmt.Errorf("setup: metrics extension: %w", err)
	}
	s.extensions.Register(obsExt)

	for _, e := range s.extraExts {
		s.extensions.Register(e)
	}

	cfg := t.Config()
	recOpts := []reconcile.Option{
		reconcile.WithEmitter(s.extensions),
		reconcile.WithPollIntervals(cfg.ActivePollInterval, cfg.IdlePollInterval),
		reconcile.WithPageSize(cfg.PollPageSize),
		reconcile.WithNotificationHistory(cfg.NotificationHistory),
	}
	if cfg.StaleRunningThreshold > 0 {
		recOpts = append(recOpts, reconcile.WithStaleRunningThreshold(cfg.StaleRunningThreshold))
	}
	s.rec = reconcile.New(js, logger, recOpts...)

	t.SetReconciler(s.rec)
	t.SetExtensions(s.extensions)

	return s, nil
}

// Engine returns the lifecycle operations layer.
func (s *System) Engine() *engine.Engine { return s.eng }

// Reconciler returns the reconciliation loop.
func (s *System) Reconciler() *reconcile.Reconciler { return s.rec }

// Broker returns the stream broker for real-time subscriptions.
func (s *System) Broker() *stream.Broker { return s.broker }

// Extensions returns the extension registry.
func (s *System) Extensions() *hook.Registry { return s.extensions }

// Handler returns the HTTP API for the system, ready to mount on a server.
func (s *System) Handler() http.Handler {
	return api.New(s.eng, s.rec, s.broker, s.tracker.Logger()).Handler()
}
