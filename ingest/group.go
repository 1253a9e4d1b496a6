package ingest

import (
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/retrospect/oplog"
	"github.com/dogmatiq/retrospect/reconcile"
)

// updateGroup is the set of updates within one batch that apply to the same
// process instance, in batch order.
type updateGroup struct {
	InstanceID    string
	DefinitionKey string
	Updates       []reconcile.Update
}

// groupUpdates validates the updates in a batch and groups them by process
// instance, preserving the order in which each instance first appears.
//
// Structurally invalid updates are returned as malformed outcomes.
// Individually malformed entries within an otherwise valid update are
// stripped and logged, but do not fail the update.
func groupUpdates(
	updates []reconcile.Update,
	logger logging.Logger,
) ([]updateGroup, []Outcome) {
	var (
		groups    []updateGroup
		malformed []Outcome
	)

	index := map[string]int{}

	for _, upd := range updates {
		sanitized, err := upd.Validate()

		if sanitized.InstanceID == "" || sanitized.DefinitionKey == "" {
			malformed = append(malformed, Outcome{
				ID:    sanitized.InstanceID,
				Class: FailureMalformed,
				Err:   err,
			})
			continue
		}

		if err != nil {
			logging.Log(logger, "%s", err)
		}

		if i, ok := index[sanitized.InstanceID]; ok {
			groups[i].Updates = append(groups[i].Updates, sanitized)
			continue
		}

		index[sanitized.InstanceID] = len(groups)
		groups = append(groups, updateGroup{
			InstanceID:    sanitized.InstanceID,
			DefinitionKey: sanitized.DefinitionKey,
			Updates:       []reconcile.Update{sanitized},
		})
	}

	return groups, malformed
}

// entryGroup is the set of operation log entries within one batch that
// apply to the same user task, in batch order.
type entryGroup struct {
	TaskID        string
	DefinitionKey string
	Entries       []oplog.Entry
}

// groupEntries validates the operation log entries in a batch and groups
// them by task, preserving the order in which each task first appears.
func groupEntries(
	entries []oplog.Entry,
	logger logging.Logger,
) ([]entryGroup, []Outcome) {
	var (
		groups    []entryGroup
		malformed []Outcome
	)

	index := map[string]int{}

	for _, e := range entries {
		if e.ID == "" || e.TaskID == "" || e.DefinitionKey == "" || e.Timestamp.IsZero() {
			err := fmt.Errorf(
				"operation log entry %q does not carry an identity",
				e.ID,
			)
			logging.Log(logger, "%s", err)

			malformed = append(malformed, Outcome{
				ID:    e.TaskID,
				Class: FailureMalformed,
				Err:   err,
			})
			continue
		}

		if i, ok := index[e.TaskID]; ok {
			groups[i].Entries = append(groups[i].Entries, e)
			continue
		}

		index[e.TaskID] = len(groups)
		groups = append(groups, entryGroup{
			TaskID:        e.TaskID,
			DefinitionKey: e.DefinitionKey,
			Entries:       []oplog.Entry{e},
		})
	}

	return groups, malformed
}
