package jobline

import (
	"context"
	"log/slog"
)

// Storer is the minimal store interface held by the Tracker. It covers
// lifecycle operations only. The full contract (job.Store) is consumed by
// the subsystem layers, which the root package cannot import back.
type Storer interface {
	Ping(ctx context.Context) error
	Close() error
}

// reconRunner is an internal interface for the reconciliation loop's
// lifecycle.
type reconRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Tracker is the central coordinator for job tracking: lifecycle
// operations, reconciliation, and real-time fan-out.
//
// Create one with New() and functional options, then wire the subsystems
// with setup.Build(). The Tracker holds references to subsystem components
// via internal interfaces to avoid import cycles.
type Tracker struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	reconciler reconRunner
	extensions extensionEmitter

	// started tracks whether Start has been called.
	started bool
}

// New creates a new Tracker with the given options.
func New(opts ...Option) (*Tracker, error) {
	t := &Tracker{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.store == nil {
		return nil, ErrNoStore
	}
	return t, nil
}

// Logger returns the tracker's logger.
func (t *Tracker) Logger() *slog.Logger { return t.logger }

// Store returns the tracker's store.
func (t *Tracker) Store() Storer { return t.store }

// Config returns a copy of the tracker's configuration.
func (t *Tracker) Config() Config { return t.config }

// SetReconciler sets the reconciliation loop (called by the setup package).
func (t *Tracker) SetReconciler(r reconRunner) { t.reconciler = r }

// SetExtensions sets the extension emitter (called by the setup package).
func (t *Tracker) SetExtensions(e extensionEmitter) { t.extensions = e }

// Start begins reconciliation. The store must already be reachable; the
// reconciler seeds its baseline synchronously before Start returns.
func (t *Tracker) Start(ctx context.Context) error {
	if t.reconciler == nil {
		return ErrNotBuilt
	}
	if err := t.reconciler.Start(ctx); err != nil {
		return err
	}
	t.started = true
	return nil
}

// Stop gracefully shuts down the tracker: the reconciliation loop first,
// then extension shutdown hooks, then the store.
func (t *Tracker) Stop(ctx context.Context) error {
	if t.reconciler != nil && t.started {
		if err := t.reconciler.Stop(ctx); err != nil {
			t.logger.Error("reconciler stop error", "error", err)
		}
	}
	if t.extensions != nil {
		t.extensions.EmitShutdown(ctx)
	}
	if t.store != nil {
		return t.store.Close()
	}
	return nil
}
