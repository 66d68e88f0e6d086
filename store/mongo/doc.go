// Package mongo implements the job store on MongoDB. Conditional
// transitions use a revision-guarded replace, and the change feed is a
// MongoDB change stream with full-document lookup, so watchers receive
// complete snapshots rather than raw oplog deltas.
package mongo
