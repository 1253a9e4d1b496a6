package oplog

import "time"

// Kind is the effect of an operation log entry.
type Kind string

const (
	Add    Kind = "ADD"
	Delete Kind = "DELETE"
)

// Category identifies what an operation log entry operates on.
type Category string

const (
	Assignee       Category = "assignee"
	CandidateGroup Category = "candidateGroup"
)

// Entry is a single assignment or candidate group change for a user task.
//
// The log is append-only; derived state is always recomputed from the full
// ordered, deduplicated log, never stored incrementally.
type Entry struct {
	// ID is the entry's identity, used for deduplication on merge.
	ID string `json:"id"`

	// TaskID is the user task the entry belongs to. Entries are grouped by
	// task before they are applied.
	TaskID string `json:"taskId"`

	// DefinitionKey identifies the process definition the task belongs to.
	DefinitionKey string `json:"definitionKey"`

	// Timestamp orders the entry within the log.
	Timestamp time.Time `json:"timestamp"`

	// Kind is ADD or DELETE. Entries of any other kind are ignored.
	Kind Kind `json:"kind"`

	// Category selects whether Subject is a user ID or a candidate group
	// ID.
	Category Category `json:"category"`

	// Subject is the user or candidate group the operation applies to.
	Subject string `json:"subject"`
}

// isClaim returns true if the entry represents a user claiming the task.
func (e Entry) isClaim() bool {
	return e.Kind == Add && e.Category == Assignee
}
