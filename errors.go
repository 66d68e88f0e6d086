package jobline

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("jobline: no store configured")
	ErrNotBuilt    = errors.New("jobline: tracker not built, call setup.Build first")
	ErrStoreClosed = errors.New("jobline: store closed")

	// Not found errors.
	ErrJobNotFound = errors.New("jobline: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("jobline: job already exists")
	ErrConflict         = errors.New("jobline: conflicting concurrent modification")

	// Validation errors.
	ErrValidation = errors.New("jobline: invalid job spec")

	// State errors.
	ErrInvalidTransition  = errors.New("jobline: invalid state transition")
	ErrInvalidState       = errors.New("jobline: job cannot be retried")
	ErrRetryLimitExceeded = errors.New("jobline: retry limit exceeded")

	// Feed errors.
	ErrUpstreamUnavailable = errors.New("jobline: upstream store or feed unavailable")
	ErrWatchClosed         = errors.New("jobline: change feed closed")
)
