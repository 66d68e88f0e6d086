package audithook

// Audit event actions. Each constant corresponds to one observed job
// lifecycle edge or feed state change and becomes the Action field of
// the audit event.
const (
	ActionJobCreated    = "job.created"
	ActionJobStarted    = "job.started"
	ActionJobCompleted  = "job.completed"
	ActionJobFailed     = "job.failed"
	ActionJobCancelled  = "job.cancelled"
	ActionJobRequeued   = "job.requeued"
	ActionJobRemoved    = "job.removed"
	ActionFeedDegraded  = "feed.degraded"
	ActionFeedRecovered = "feed.recovered"
)

// Audit event categories group related actions.
const (
	CategoryJob  = "jobline.job"
	CategoryFeed = "jobline.feed"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob  = "job"
	ResourceFeed = "change_feed"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobCreated,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobFailed,
		ActionJobCancelled,
		ActionJobRequeued,
		ActionJobRemoved,
		ActionFeedDegraded,
		ActionFeedRecovered,
	}
}
