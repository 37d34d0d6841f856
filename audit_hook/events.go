package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobScheduled = "job.scheduled"
	ActionJobStarted   = "job.started"
	ActionJobEnded     = "job.ended"
	ActionJobErrored   = "job.errored"
)

// CategoryJob groups every job action.
const CategoryJob = "architect.job"

// Resource types used as the Resource field in audit events.
const (
	ResourceJob    = "job"
	ResourceTarget = "target"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobScheduled,
		ActionJobStarted,
		ActionJobEnded,
		ActionJobErrored,
	}
}
