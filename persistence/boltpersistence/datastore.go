package boltpersistence

import (
	"context"
	"sync"

	"github.com/dogmatiq/retrospect/internal/x/bboltx"
	"github.com/dogmatiq/retrospect/persistence"
	"go.etcd.io/bbolt"
)

// dataStore is an implementation of persistence.DataStore for BoltDB.
type dataStore struct {
	db              *bbolt.DB
	defKey          []byte
	maxDocumentSize int

	m       sync.RWMutex
	release func(string) error
}

// Persist commits a batch of operations atomically.
//
// If any one of the operations causes an optimistic concurrency conflict
// the entire batch is aborted and a ConflictError is returned.
func (ds *dataStore) Persist(
	ctx context.Context,
	b persistence.Batch,
) (_ persistence.Result, err error) {
	b.MustValidate()

	defer bboltx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return persistence.Result{}, persistence.ErrDataStoreClosed
	}

	c := &committer{maxDocumentSize: ds.maxDocumentSize}

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			c.root = bboltx.CreateBucketIfNotExists(tx, ds.defKey)
			bboltx.Must(b.AcceptVisitor(ctx, c))
		},
	)

	return c.result, nil
}

// PersistBulk applies each operation in the batch independently, reporting
// per-operation failures in the result.
func (ds *dataStore) PersistBulk(
	ctx context.Context,
	b persistence.Batch,
) (persistence.BulkResult, error) {
	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return persistence.BulkResult{}, persistence.ErrDataStoreClosed
	}

	var result persistence.BulkResult

	for _, op := range b {
		result.Items = append(
			result.Items,
			persistence.BulkResultItem{
				Op:  op,
				Err: ds.persistOne(ctx, op),
			},
		)
	}

	return result, nil
}

// persistOne applies a single operation in its own transaction.
func (ds *dataStore) persistOne(
	ctx context.Context,
	op persistence.Operation,
) (err error) {
	defer bboltx.Recover(&err)

	c := &committer{maxDocumentSize: ds.maxDocumentSize}

	bboltx.Update(
		ds.db,
		func(tx *bbolt.Tx) {
			c.root = bboltx.CreateBucketIfNotExists(tx, ds.defKey)
			bboltx.Must(op.AcceptVisitor(ctx, c))
		},
	)

	return nil
}

// Close closes the data store.
//
// Closing a data-store causes any future calls to Persist() or
// PersistBulk() to return ErrDataStoreClosed.
func (ds *dataStore) Close() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.release == nil {
		return persistence.ErrDataStoreClosed
	}

	r := ds.release
	ds.db = nil
	ds.release = nil

	return r(string(ds.defKey))
}

// committer is an implementation of persistence.OperationVisitor that
// applies operations to the database, validating the revision of each
// document as it goes.
type committer struct {
	root            *bbolt.Bucket
	maxDocumentSize int
	result          persistence.Result
}
