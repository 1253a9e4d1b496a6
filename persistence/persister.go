package persistence

import (
	"context"
	"errors"
)

// A Persister is an interface for committing batches of atomic operations to
// the data store.
type Persister interface {
	// Persist commits a batch of operations atomically.
	//
	// If any one of the operations causes an optimistic concurrency
	// conflict the entire batch is aborted and a ConflictError is
	// returned.
	Persist(context.Context, Batch) (Result, error)
}

// Result is the result of a successfully persisted batch of operations.
type Result struct {
	// AggregateRecords contains the revisions, as persisted, of each
	// record written by a SaveAggregate operation.
	AggregateRecords []AggregateRecord

	// TaskStateRecords contains the revisions, as persisted, of each
	// record written by a SaveTaskState operation.
	TaskStateRecords []TaskStateRecord
}

// A BulkPersister is an interface for committing batches of independent
// operations to the data store.
type BulkPersister interface {
	// PersistBulk applies each operation in the batch independently.
	//
	// Unlike Persister.Persist(), a failing operation does not abort the
	// remainder of the batch; its failure is reported in the result
	// instead. The returned error is non-nil only if the store itself is
	// unavailable.
	PersistBulk(context.Context, Batch) (BulkResult, error)
}

// BulkResult reports the outcome of each operation in a bulk batch.
type BulkResult struct {
	// Items contains one entry per operation, in batch order.
	Items []BulkResultItem
}

// Failed returns the items that did not persist.
func (r BulkResult) Failed() []BulkResultItem {
	var failed []BulkResultItem
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}

	return failed
}

// BulkResultItem is the outcome of one operation within a bulk batch.
type BulkResultItem struct {
	// Op is the operation that was attempted.
	Op Operation

	// Err is nil if the operation persisted successfully.
	Err error
}

// IsCapacityError returns true if the item failed for a store capacity
// reason.
func (i BulkResultItem) IsCapacityError() bool {
	var c CapacityError
	return errors.As(i.Err, &c)
}
