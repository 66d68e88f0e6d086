package jobline

import "time"

// Config holds configuration for the Tracker.
type Config struct {
	// ActivePollInterval is how often the reconciler polls the store while
	// any observed job is pending or running.
	ActivePollInterval time.Duration

	// IdlePollInterval is how often the reconciler polls once every
	// observed job is terminal.
	IdlePollInterval time.Duration

	// PollPageSize is the maximum number of jobs fetched per poll.
	PollPageSize int

	// NotificationHistory is the number of derived notifications retained.
	// Older notifications are evicted first-in-first-out.
	NotificationHistory int

	// StaleRunningThreshold is how long a job may stay running without a
	// progress update before the watchdog fails it. Zero disables the
	// watchdog.
	StaleRunningThreshold time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ActivePollInterval:    3 * time.Second,
		IdlePollInterval:      30 * time.Second,
		PollPageSize:          200,
		NotificationHistory:   100,
		StaleRunningThreshold: 0,
		ShutdownTimeout:       30 * time.Second,
	}
}
