package memorypersistence

import (
	"context"

	"github.com/dogmatiq/retrospect/persistence"
)

// dataStore is an implementation of persistence.DataStore that stores
// documents in memory.
type dataStore struct {
	db *database
}

// Persist commits a batch of operations atomically.
//
// If any one of the operations causes an optimistic concurrency conflict
// the entire batch is aborted and a ConflictError is returned.
func (ds *dataStore) Persist(
	ctx context.Context,
	b persistence.Batch,
) (persistence.Result, error) {
	b.MustValidate()

	ds.db.mutex.Lock()
	defer ds.db.mutex.Unlock()

	if !ds.db.open {
		return persistence.Result{}, persistence.ErrDataStoreClosed
	}

	v := &validator{db: ds.db}
	if err := b.AcceptVisitor(ctx, v); err != nil {
		return persistence.Result{}, err
	}

	c := &committer{db: ds.db}
	if err := b.AcceptVisitor(ctx, c); err != nil {
		// The batch was fully validated, so the commit can not fail.
		panic(err)
	}

	return c.result, nil
}

// PersistBulk applies each operation in the batch independently, reporting
// per-operation failures in the result.
func (ds *dataStore) PersistBulk(
	ctx context.Context,
	b persistence.Batch,
) (persistence.BulkResult, error) {
	ds.db.mutex.Lock()
	defer ds.db.mutex.Unlock()

	if !ds.db.open {
		return persistence.BulkResult{}, persistence.ErrDataStoreClosed
	}

	var result persistence.BulkResult

	for _, op := range b {
		v := &validator{db: ds.db}

		err := op.AcceptVisitor(ctx, v)
		if err == nil {
			c := &committer{db: ds.db}

			if err = op.AcceptVisitor(ctx, c); err != nil {
				panic(err)
			}
		}

		result.Items = append(
			result.Items,
			persistence.BulkResultItem{
				Op:  op,
				Err: err,
			},
		)
	}

	return result, nil
}

// Close closes the data store.
func (ds *dataStore) Close() error {
	ds.db.mutex.RLock()
	open := ds.db.open
	ds.db.mutex.RUnlock()

	if !open {
		return persistence.ErrDataStoreClosed
	}

	ds.db.Close()

	return nil
}

// validator is an implementation of persistence.OperationVisitor that
// returns an error if an operation can not be applied to the database.
type validator struct {
	db *database
}

// committer is an implementation of persistence.OperationVisitor that
// applies operations to the database.
//
// It is expected that the operations have already been validated using
// validator.
type committer struct {
	db     *database
	result persistence.Result
}
