// Package backoff provides pluggable delay strategies. Jobline uses them in
// two places: the retry policy (how long a resubmitted job waits before it
// is eligible again) and the change feed adapter (how long to wait before
// resubscribing after the feed drops). All strategies are stateless and
// safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before attempt n (1-indexed). Attempt 1 is
// the first retry after the initial failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear grows the delay by a fixed increment each attempt.
// Delay = min(Initial + Increment*(attempt-1), Max).
type Linear struct {
	Initial   time.Duration
	Increment time.Duration
	Max       time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, increment, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Increment: increment, Max: maxDelay}
}

// Delay returns Initial + Increment*(attempt-1), capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	d := l.Initial + time.Duration(attempt-1)*l.Increment
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ExponentialWithJitter applies full jitter to an exponential base.
// Delay = random value in [0, min(Initial * 2^(attempt-1), Max)].
// This prevents thundering herd when many subscribers reconnect at once.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// DefaultRetry returns the default strategy for job retry eligibility:
// exponential with 30s initial and 10m max. The first retry of a failed
// import waits half a minute; later ones back off hard because the
// upstream provider is usually the bottleneck.
func DefaultRetry() Strategy {
	return NewExponential(30*time.Second, 10*time.Minute)
}

// DefaultResubscribe returns the default strategy for change feed
// resubscription: exponential with full jitter, 1s initial, 1m max.
func DefaultResubscribe() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}
