// Package jobline tracks long-running background jobs and keeps every
// observer consistent with a single source of truth.
//
// Jobline is designed as a library, not a service. Import it, configure a
// store, and a Tracker gives you the full job lifecycle: creation, worker
// progress reporting, bounded retries, bulk actions, and a reconciled
// real-time view that merges the store's change feed with periodic polling.
//
// # Quick Start
//
//	st := memory.New()
//	tr, err := jobline.New(
//	    jobline.WithStore(st),
//	    jobline.WithNotificationHistory(100),
//	)
//	if err != nil { ... }
//	sys, err := setup.Build(tr)
//	if err != nil { ... }
//	if err := tr.Start(ctx); err != nil { ... }
//	defer tr.Stop(context.Background())
//
//	j, err := sys.Engine().Create(ctx, job.Spec{Type: job.TypeSyncMeetings, Name: "Sync recent meetings"})
//
// # Architecture
//
// Jobline follows a composable store pattern: the job package defines the
// persistence contract, and a backend (memory, mongo, redis) implements it.
// The store is the single source of truth. Mutations go through conditional
// transitions validated by a pure state machine, so a retry request that
// races with an in-flight completion loses cleanly with a conflict instead
// of silently overwriting state.
//
// A single reconciliation goroutine consumes both the store's change feed
// and poll results, merges them under a per-job freshness rule, and fans
// reconciled changes out to stream subscribers. Observers therefore see
// each transition at most once, no matter how many delivery paths carried
// it.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package jobline
