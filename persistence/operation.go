package persistence

import "context"

// Operation is a persistence operation that can be performed as part of an
// atomic batch.
type Operation interface {
	// AcceptVisitor calls the appropriate visit method on the given visitor.
	AcceptVisitor(context.Context, OperationVisitor) error

	// entityKey uniquely identifies the document that the operation
	// applies to.
	entityKey() string
}

// SaveAggregate is a persistence operation that creates or replaces a
// process instance aggregate document.
type SaveAggregate struct {
	// Record is the record to persist.
	//
	// Record.Revision must be the revision of the record as currently
	// persisted, otherwise an optimistic concurrency conflict occurs and
	// the entire batch of operations is rejected.
	Record AggregateRecord
}

// SaveTaskState is a persistence operation that creates or replaces a user
// task state document.
type SaveTaskState struct {
	// Record is the record to persist.
	//
	// Record.Revision must be the revision of the record as currently
	// persisted, otherwise an optimistic concurrency conflict occurs and
	// the entire batch of operations is rejected.
	Record TaskStateRecord
}

// RemoveAggregate is a persistence operation that deletes a process instance
// aggregate document.
type RemoveAggregate struct {
	// InstanceID is the key of the document to remove.
	InstanceID string

	// Revision must be the revision of the record as currently persisted,
	// otherwise an optimistic concurrency conflict occurs and the entire
	// batch of operations is rejected.
	Revision uint64
}

// ClearVariables is a persistence operation that removes all variables from
// a process instance aggregate document, leaving the rest of the document
// untouched.
type ClearVariables struct {
	// InstanceID is the key of the document to clear.
	InstanceID string

	// Revision must be the revision of the record as currently persisted,
	// otherwise an optimistic concurrency conflict occurs and the entire
	// batch of operations is rejected.
	Revision uint64
}

// OperationVisitor dispatches operations to their implementation.
type OperationVisitor interface {
	VisitSaveAggregate(context.Context, SaveAggregate) error
	VisitSaveTaskState(context.Context, SaveTaskState) error
	VisitRemoveAggregate(context.Context, RemoveAggregate) error
	VisitClearVariables(context.Context, ClearVariables) error
}

// AcceptVisitor calls v.VisitSaveAggregate().
func (op SaveAggregate) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveAggregate(ctx, op)
}

// AcceptVisitor calls v.VisitSaveTaskState().
func (op SaveTaskState) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveTaskState(ctx, op)
}

// AcceptVisitor calls v.VisitRemoveAggregate().
func (op RemoveAggregate) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitRemoveAggregate(ctx, op)
}

// AcceptVisitor calls v.VisitClearVariables().
func (op ClearVariables) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitClearVariables(ctx, op)
}

func (op SaveAggregate) entityKey() string {
	return "aggregate:" + op.Record.InstanceID
}

func (op SaveTaskState) entityKey() string {
	return "task:" + op.Record.TaskID
}

func (op RemoveAggregate) entityKey() string {
	return "aggregate:" + op.InstanceID
}

func (op ClearVariables) entityKey() string {
	return "aggregate:" + op.InstanceID
}
