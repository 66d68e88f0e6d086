package jobline

import (
	"log/slog"
	"time"
)

// Option configures a Tracker.
type Option func(*Tracker) error

// WithStore sets the persistence backend for the tracker.
// The store must implement Storer at minimum; typically it will also
// implement job.Store, which setup.Build requires.
func WithStore(s Storer) Option {
	return func(t *Tracker) error {
		t.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the tracker.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) error {
		t.logger = l
		return nil
	}
}

// WithConfig replaces the tracker's configuration wholesale.
func WithConfig(c Config) Option {
	return func(t *Tracker) error {
		t.config = c
		return nil
	}
}

// WithPollIntervals sets the reconciler's active and idle poll cadence.
func WithPollIntervals(active, idle time.Duration) Option {
	return func(t *Tracker) error {
		t.config.ActivePollInterval = active
		t.config.IdlePollInterval = idle
		return nil
	}
}

// WithNotificationHistory sets how many derived notifications are retained.
func WithNotificationHistory(n int) Option {
	return func(t *Tracker) error {
		t.config.NotificationHistory = n
		return nil
	}
}

// WithStaleRunningThreshold enables the watchdog that fails running jobs
// whose last update is older than d. Zero disables it.
func WithStaleRunningThreshold(d time.Duration) Option {
	return func(t *Tracker) error {
		t.config.StaleRunningThreshold = d
		return nil
	}
}
