// Package reconcile merges the store's change feed with periodic poll
// results into one canonical, deduplicated view of all tracked jobs, and
// derives user-facing notifications from the state transitions it accepts.
//
// Two independently-timed update paths feed the same view: the push-based
// change feed (at-least-once, possibly duplicated or out of order) and the
// pull-based poller. A per-job freshness rule (apply only a strictly newer
// UpdatedAt, or an equal UpdatedAt with a different revision token)
// guarantees that replays and stale poll results never regress state,
// regardless of which path delivered them first.
//
// A single goroutine consumes both paths, so everything downstream
// (stream subscribers, notification history, metrics) observes changes for
// a given job in the order they were accepted.
package reconcile
