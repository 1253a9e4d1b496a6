package persistence

import (
	"context"
	"time"
)

// Repository is an interface for reading persisted documents.
type Repository interface {
	// LoadAggregate loads the aggregate record for a process instance.
	//
	// If the instance has never been persisted a zero-valued record with a
	// revision of zero is returned; persisting against revision zero
	// creates the document.
	LoadAggregate(ctx context.Context, id string) (AggregateRecord, error)

	// LoadTaskState loads the state record for a user task.
	//
	// If the task has never been persisted a zero-valued record with a
	// revision of zero is returned.
	LoadTaskState(ctx context.Context, id string) (TaskStateRecord, error)

	// LoadStaleAggregateIDs returns the IDs of up to limit completed
	// instances that ended before the given time, in unspecified order.
	LoadStaleAggregateIDs(
		ctx context.Context,
		endedBefore time.Time,
		limit int,
	) ([]string, error)
}
