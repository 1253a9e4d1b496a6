package persistence

import (
	"github.com/dogmatiq/retrospect/instance"
	"github.com/dogmatiq/retrospect/oplog"
)

// AggregateRecord is the persisted form of a process instance aggregate.
type AggregateRecord struct {
	// InstanceID is the process instance ID. It is the document key.
	InstanceID string

	// Revision is the record's version, used to enforce optimistic
	// concurrency control. It is zero for a record that has never been
	// persisted.
	Revision uint64

	// Aggregate is the document itself.
	Aggregate instance.Aggregate
}

// TaskStateRecord is the persisted form of a user task's derived state.
type TaskStateRecord struct {
	// TaskID is the user task ID. It is the document key.
	TaskID string

	// Revision is the record's version, used to enforce optimistic
	// concurrency control. It is zero for a record that has never been
	// persisted.
	Revision uint64

	// State is the document itself.
	State oplog.TaskState
}
