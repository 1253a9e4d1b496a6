package memorypersistence

import (
	"context"
	"sort"
	"time"

	"github.com/dogmatiq/retrospect/persistence"
)

// LoadAggregate loads the aggregate record for a process instance.
func (ds *dataStore) LoadAggregate(
	_ context.Context,
	id string,
) (persistence.AggregateRecord, error) {
	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	if rec, ok := ds.db.aggregates[id]; ok {
		rec.Aggregate = rec.Aggregate.Clone()
		return rec, nil
	}

	return persistence.AggregateRecord{
		InstanceID: id,
	}, nil
}

// LoadStaleAggregateIDs returns the IDs of up to limit completed instances
// that ended before the given time.
func (ds *dataStore) LoadStaleAggregateIDs(
	_ context.Context,
	endedBefore time.Time,
	limit int,
) ([]string, error) {
	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	var ids []string
	for id, rec := range ds.db.aggregates {
		end := rec.Aggregate.EndDate
		if end != nil && end.Before(endedBefore) {
			ids = append(ids, id)
		}
	}

	// Deterministic order, as map iteration is not.
	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}

// VisitSaveAggregate returns an error if a SaveAggregate operation can not
// be applied to the database.
func (v *validator) VisitSaveAggregate(
	_ context.Context,
	op persistence.SaveAggregate,
) error {
	old := v.db.aggregates[op.Record.InstanceID]

	if op.Record.Revision != old.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	return v.db.checkCapacity(op, op.Record.Aggregate)
}

// VisitSaveAggregate applies the changes in a SaveAggregate operation to the
// database.
func (c *committer) VisitSaveAggregate(
	_ context.Context,
	op persistence.SaveAggregate,
) error {
	rec := op.Record
	rec.Revision++
	rec.Aggregate = rec.Aggregate.Clone()

	if c.db.aggregates == nil {
		c.db.aggregates = map[string]persistence.AggregateRecord{}
	}

	c.db.aggregates[rec.InstanceID] = rec
	c.result.AggregateRecords = append(c.result.AggregateRecords, rec)

	return nil
}

// VisitRemoveAggregate returns an error if a RemoveAggregate operation can
// not be applied to the database.
func (v *validator) VisitRemoveAggregate(
	_ context.Context,
	op persistence.RemoveAggregate,
) error {
	old, ok := v.db.aggregates[op.InstanceID]

	if !ok {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	if op.Revision != old.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	return nil
}

// VisitRemoveAggregate applies the changes in a RemoveAggregate operation to
// the database.
func (c *committer) VisitRemoveAggregate(
	_ context.Context,
	op persistence.RemoveAggregate,
) error {
	delete(c.db.aggregates, op.InstanceID)
	return nil
}

// VisitClearVariables returns an error if a ClearVariables operation can not
// be applied to the database.
func (v *validator) VisitClearVariables(
	_ context.Context,
	op persistence.ClearVariables,
) error {
	old, ok := v.db.aggregates[op.InstanceID]

	if !ok {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	if op.Revision != old.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	return nil
}

// VisitClearVariables applies the changes in a ClearVariables operation to
// the database.
func (c *committer) VisitClearVariables(
	_ context.Context,
	op persistence.ClearVariables,
) error {
	rec := c.db.aggregates[op.InstanceID]
	rec.Revision++
	rec.Aggregate.Variables = nil

	c.db.aggregates[op.InstanceID] = rec
	c.result.AggregateRecords = append(c.result.AggregateRecords, rec)

	return nil
}
