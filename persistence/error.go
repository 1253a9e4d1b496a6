package persistence

import "fmt"

// ConflictError is an error indicating one or more operations within a batch
// caused an optimistic concurrency conflict.
type ConflictError struct {
	// Cause is the operation that caused the conflict.
	Cause Operation
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict in %T operation",
		e.Cause,
	)
}

// NotFoundError is an error indicating one or more operations within a batch
// referenced a document that does not exist.
type NotFoundError struct {
	// Cause is the operation that caused the error.
	Cause Operation
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf(
		"document not found in %T operation",
		e.Cause,
	)
}

// CapacityError is an error indicating that the store rejected a document
// for a capacity reason, such as exceeding the maximum document size.
type CapacityError struct {
	// Cause is the operation that caused the error.
	Cause Operation

	// Reason describes the capacity limit that was exceeded.
	Reason string
}

func (e CapacityError) Error() string {
	return fmt.Sprintf(
		"store capacity exceeded in %T operation: %s",
		e.Cause,
		e.Reason,
	)
}
