package boltpersistence

import (
	"context"
	"sort"
	"time"

	"github.com/dogmatiq/retrospect/internal/x/bboltx"
	"github.com/dogmatiq/retrospect/persistence"
	"go.etcd.io/bbolt"
)

// aggregateBucketKey is the key of the bucket that contains aggregate
// documents, keyed by process instance ID.
var aggregateBucketKey = []byte("aggregate")

// LoadAggregate loads the aggregate document for a specific process
// instance.
//
// If the instance has never been persisted a zero-valued record with a
// revision of zero is returned.
func (ds *dataStore) LoadAggregate(
	_ context.Context,
	id string,
) (_ persistence.AggregateRecord, err error) {
	defer bboltx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return persistence.AggregateRecord{}, persistence.ErrDataStoreClosed
	}

	rec := persistence.AggregateRecord{
		InstanceID: id,
	}

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b, ok := bboltx.TryBucket(tx, ds.defKey, aggregateBucketKey)
			if !ok {
				return
			}

			data := b.Get([]byte(id))
			if data == nil {
				return
			}

			var doc persistedAggregate
			unmarshalDocument(data, &doc)

			rec.Revision = doc.Revision
			rec.Aggregate = doc.Document
		},
	)

	return rec, nil
}

// LoadStaleAggregateIDs returns the IDs of up to n completed instances that
// ended before the given cut-off time.
//
// The IDs are returned in lexical order so that repeated sweeps progress
// deterministically.
func (ds *dataStore) LoadStaleAggregateIDs(
	_ context.Context,
	endedBefore time.Time,
	n int,
) (_ []string, err error) {
	defer bboltx.Recover(&err)

	ds.m.RLock()
	defer ds.m.RUnlock()

	if ds.release == nil {
		return nil, persistence.ErrDataStoreClosed
	}

	var ids []string

	bboltx.View(
		ds.db,
		func(tx *bbolt.Tx) {
			b, ok := bboltx.TryBucket(tx, ds.defKey, aggregateBucketKey)
			if !ok {
				return
			}

			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var doc persistedAggregate
				unmarshalDocument(v, &doc)

				end := doc.Document.EndDate
				if end == nil || !end.Before(endedBefore) {
					continue
				}

				ids = append(ids, string(k))
			}
		},
	)

	sort.Strings(ids)

	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}

	return ids, nil
}

// VisitSaveAggregate applies the changes in a SaveAggregate operation.
func (c *committer) VisitSaveAggregate(
	_ context.Context,
	op persistence.SaveAggregate,
) error {
	b := bboltx.CreateBucketIfNotExists(c.root, aggregateBucketKey)
	k := []byte(op.Record.InstanceID)

	if rev := loadAggregateRevision(b, k); rev != op.Record.Revision {
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
			persistedAggregate{
				Revision: rec.Revision,
				Document: rec.Aggregate,
			},
		),
	)

	c.result.AggregateRecords = append(c.result.AggregateRecords, rec)

	return nil
}

// VisitRemoveAggregate applies the changes in a RemoveAggregate operation.
func (c *committer) VisitRemoveAggregate(
	_ context.Context,
	op persistence.RemoveAggregate,
) error {
	b := bboltx.CreateBucketIfNotExists(c.root, aggregateBucketKey)
	k := []byte(op.InstanceID)

	if b.Get(k) == nil {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	if rev := loadAggregateRevision(b, k); rev != op.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	bboltx.Delete(b, k)

	return nil
}

// VisitClearVariables applies the changes in a ClearVariables operation.
func (c *committer) VisitClearVariables(
	_ context.Context,
	op persistence.ClearVariables,
) error {
	b := bboltx.CreateBucketIfNotExists(c.root, aggregateBucketKey)
	k := []byte(op.InstanceID)

	data := b.Get(k)
	if data == nil {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	var doc persistedAggregate
	unmarshalDocument(data, &doc)

	if doc.Revision != op.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	doc.Revision++
	doc.Document.Variables = nil

	bboltx.Put(
		b,
		k,
		marshalDocument(op, c.maxDocumentSize, doc),
	)

	c.result.AggregateRecords = append(
		c.result.AggregateRecords,
		persistence.AggregateRecord{
			InstanceID: op.InstanceID,
			Revision:   doc.Revision,
			Aggregate:  doc.Document,
		},
	)

	return nil
}

// loadAggregateRevision returns the persisted revision of an aggregate
// document, or zero if the document does not exist.
func loadAggregateRevision(b *bbolt.Bucket, k []byte) uint64 {
	data := b.Get(k)
	if data == nil {
		return 0
	}

	var doc persistedAggregate
	unmarshalDocument(data, &doc)

	return doc.Revision
}
