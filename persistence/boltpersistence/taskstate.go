package boltpersistence

import (
	"context"

	"github.com/dogmatiq/retrospect/internal/x/bboltx"
	"github.com/dogmatiq/retrospect/persistence"
	"go.etcd.io/bbolt"
)

// taskStateBucketKey is the key of the bucket that contains user-task state
// documents, keyed by task ID.
var taskStateBucketKey = []byte("usertask")

// LoadTaskState loads the user-task state document for a specific task.
//
// If the task has never been persisted a zero-valued record with a revision
// of zero is returned.
func (ds *dataStore) LoadTaskState(
	_ context.Context,
	id string,
) (_ persistence.TaskStateRecord, err error) {
	defer bboltx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return persistence.TaskStateRecord{}, persistence.ErrDataStoreClosed
	}

	rec := persistence.TaskStateRecord{
		TaskID: id,
	}

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b, ok := bboltx.TryBucket(tx, ds.defKey, taskStateBucketKey)
			if !ok {
				return
			}

			data := b.Get([]byte(id))
			if data == nil {
				return
			}

			var doc persistedTaskState
			unmarshalDocument(data, &doc)

			rec.Revision = doc.Revision
			rec.State = doc.Document
		},
	)

	return rec, nil
}

// VisitSaveTaskState applies the changes in a SaveTaskState operation.
func (c *committer) VisitSaveTaskState(
	_ context.Context,
	op persistence.SaveTaskState,
) error {
	b := bboltx.CreateBucketIfNotExists(c.root, taskStateBucketKey)
	k := []byte(op.Record.TaskID)

	if rev := loadTaskStateRevision(b, k); rev != op.Record.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	rec := op.Record
	rec.Revision++

	bboltx.Put(
		b,
		k,
		marshalDocument(
			op,
			c.maxDocumentSize,
			persistedTaskState{
				Revision: rec.Revision,
				Document: rec.State,
			},
		),
	)

	c.result.TaskStateRecords = append(c.result.TaskStateRecords, rec)

	return nil
}

// loadTaskStateRevision returns the persisted revision of a task state
// document, or zero if the document does not exist.
func loadTaskStateRevision(b *bbolt.Bucket, k []byte) uint64 {
	data := b.Get(k)
	if data == nil {
		return 0
	}

	var doc persistedTaskState
	unmarshalDocument(data, &doc)

	return doc.Revision
}
