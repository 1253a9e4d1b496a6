package memorypersistence

import (
	"context"

	"github.com/dogmatiq/retrospect/oplog"
	"github.com/dogmatiq/retrospect/persistence"
)

// LoadTaskState loads the state record for a user task.
func (ds *dataStore) LoadTaskState(
	_ context.Context,
	id string,
) (persistence.TaskStateRecord, error) {
	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	if rec, ok := ds.db.tasks[id]; ok {
		rec.State.Log = append([]oplog.Entry(nil), rec.State.Log...)
		rec.State.CandidateGroups = append([]string(nil), rec.State.CandidateGroups...)
		return rec, nil
	}

	return persistence.TaskStateRecord{
		TaskID: id,
	}, nil
}

// VisitSaveTaskState returns an error if a SaveTaskState operation can not
// be applied to the database.
func (v *validator) VisitSaveTaskState(
	_ context.Context,
	op persistence.SaveTaskState,
) error {
	old := v.db.tasks[op.Record.TaskID]

	if op.Record.Revision != old.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	return v.db.checkCapacity(op, op.Record.State)
}

// VisitSaveTaskState applies the changes in a SaveTaskState operation to the
// database.
func (c *committer) VisitSaveTaskState(
	_ context.Context,
	op persistence.SaveTaskState,
) error {
	rec := op.Record
	rec.Revision++
	rec.State.Log = append([]oplog.Entry(nil), rec.State.Log...)
	rec.State.CandidateGroups = append([]string(nil), rec.State.CandidateGroups...)

	if c.db.tasks == nil {
		c.db.tasks = map[string]persistence.TaskStateRecord{}
	}

	c.db.tasks[rec.TaskID] = rec
	c.result.TaskStateRecords = append(c.result.TaskStateRecords, rec)

	return nil
}
