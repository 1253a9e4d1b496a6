package ingest

import (
	"fmt"

	"go.uber.org/multierr"
)

// FailureClass is an enumeration of the broad reasons an item within a
// batch can fail.
type FailureClass string

const (
	// FailureMalformed indicates the item was structurally invalid and was
	// never attempted against the store.
	FailureMalformed FailureClass = "MALFORMED"

	// FailureConflict indicates the item exhausted its write attempts due
	// to optimistic concurrency conflicts.
	FailureConflict FailureClass = "CONFLICT"

	// FailureCapacity indicates the store rejected the item's document for
	// a capacity reason. Retrying without intervention will not succeed.
	FailureCapacity FailureClass = "CAPACITY"

	// FailureOther indicates an unclassified failure.
	FailureOther FailureClass = "OTHER"
)

// Outcome describes the result of processing a single item within a batch.
type Outcome struct {
	// ID is the ID of the document the item pertains to. It is a process
	// instance ID or a user-task ID depending on the kind of batch.
	ID string

	// Class is the failure classification. It is empty if the item
	// succeeded.
	Class FailureClass

	// Err is the error that caused the failure, if any.
	Err error
}

// OK returns true if the item was applied successfully.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report is the per-item result of ingesting a batch.
type Report struct {
	// BatchID uniquely identifies the ingestion attempt, for correlating
	// log messages.
	BatchID string

	// Outcomes contains one entry per distinct document touched by the
	// batch.
	Outcomes []Outcome
}

// Failed returns the outcomes of the items that were not applied.
func (r Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}

	return failed
}

// Err returns an error combining the errors of all failed items, or nil if
// every item was applied.
func (r Report) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			err = multierr.Append(
				err,
				fmt.Errorf("%s: %w", o.ID, o.Err),
			)
		}
	}

	return err
}
