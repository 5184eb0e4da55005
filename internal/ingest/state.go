package ingest

// State is a step of the crawl state machine.
type State string

// Crawl states. A date crawl moves fetching_page -> normalizing -> upserting for each
// row, then advancing_page until the last page, reaches done or failed, and returns
// to idle. A range crawl passes through advancing_date between dates.
const (
	StateIdle          State = "idle"
	StateFetchingPage  State = "fetching_page"
	StateNormalizing   State = "normalizing"
	StateUpserting     State = "upserting"
	StateAdvancingPage State = "advancing_page"
	StateAdvancingDate State = "advancing_date"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Event topics published around each date crawl.
const (
	TopicStarted = "crawl-perm-started"
	TopicDone    = "crawl-perm-done"
	TopicFailed  = "crawl-perm-failed"
)
