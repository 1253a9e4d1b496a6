package maintenance

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/retrospect/persistence"
)

const (
	// DefaultSweepInterval is the default interval at which the sweeper
	// scans for stale process instances.
	DefaultSweepInterval = 1 * time.Hour

	// DefaultChunkSize is the default maximum number of documents removed
	// in a single bulk write.
	DefaultChunkSize = 100
)

// DefaultBackoff is the default backoff strategy applied between sweeps
// after a failure.
var DefaultBackoff backoff.Strategy = backoff.WithTransforms(
	backoff.Exponential(1*time.Second),
	linger.FullJitter,
	linger.Limiter(0, 1*time.Hour),
)

// Sweeper periodically removes completed process instances that have passed
// their retention age, and clears the variables of instances past a shorter
// retention age.
type Sweeper struct {
	// DataStores is the set of data-stores to sweep.
	DataStores *persistence.DataStoreSet

	// DefinitionKeys are the process definitions to sweep.
	DefinitionKeys []string

	// RemovalAge is how long a completed instance is retained before its
	// document is removed. If it is zero, documents are never removed.
	RemovalAge time.Duration

	// VariableRetention is how long a completed instance retains its
	// variables before they are cleared. It is expected to be shorter than
	// RemovalAge. If it is zero, variables are never cleared.
	VariableRetention time.Duration

	// Interval is the interval at which the sweeper scans for stale
	// instances. If it is non-positive, DefaultSweepInterval is used.
	Interval time.Duration

	// ChunkSize is the maximum number of documents removed in a single
	// bulk write. If it is non-positive, DefaultChunkSize is used.
	ChunkSize int

	// BackoffStrategy is the strategy used to delay the next sweep after a
	// failure. If it is nil, DefaultBackoff is used.
	BackoffStrategy backoff.Strategy

	// Logger is the target for log messages produced about sweeps.
	// If it is nil, logging.DefaultLogger is used.
	Logger logging.Logger
}

// Run sweeps the data-stores periodically until ctx is canceled or the
// store becomes unusable.
func (s *Sweeper) Run(ctx context.Context) error {
	counter := &backoff.Counter{
		Strategy: s.BackoffStrategy,
	}
	if counter.Strategy == nil {
		counter.Strategy = DefaultBackoff
	}

	for {
		if err := s.sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			logging.Log(s.Logger, "sweep failed, retrying later: %s", err)

			if err := counter.Sleep(ctx, nil); err != nil {
				return err
			}

			continue
		}

		counter.Reset()

		if err := linger.Sleep(ctx, s.Interval, DefaultSweepInterval); err != nil {
			return err
		}
	}
}

// sweep performs a single pass over every configured definition.
func (s *Sweeper) sweep(ctx context.Context) error {
	for _, k := range s.DefinitionKeys {
		ds, err := s.DataStores.Get(ctx, k)
		if err != nil {
			return err
		}

		if s.RemovalAge > 0 {
			if err := s.removeStale(ctx, k, ds); err != nil {
				return err
			}
		}

		if s.VariableRetention > 0 {
			if err := s.clearVariables(ctx, k, ds); err != nil {
				return err
			}
		}
	}

	return nil
}

// removeStale removes the documents of instances that ended more than
// RemovalAge ago, in bounded chunks.
func (s *Sweeper) removeStale(
	ctx context.Context,
	k string,
	ds persistence.DataStore,
) error {
	cutoff := time.Now().Add(-s.RemovalAge)
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	for {
		ids, err := ds.LoadStaleAggregateIDs(ctx, cutoff, chunk)
		if err != nil {
			return err
		}

		if len(ids) == 0 {
			return nil
		}

		batch, err := s.buildRemovals(ctx, ds, ids)
		if err != nil {
			return err
		}

		removed, err := s.persistChunk(ctx, ds, batch)
		if err != nil {
			return err
		}

		logging.Debug(
			s.Logger,
			"definition %s: removed %d of %d stale instance(s)",
			k,
			removed,
			len(ids),
		)

		// If nothing in the chunk could be removed the same IDs would be
		// loaded again immediately, so give up until the next sweep.
		if removed == 0 || len(ids) < chunk {
			return nil
		}
	}
}

// buildRemovals loads the current revision of each instance and produces
// the operations that remove them.
func (s *Sweeper) buildRemovals(
	ctx context.Context,
	ds persistence.DataStore,
	ids []string,
) (persistence.Batch, error) {
	var batch persistence.Batch

	for _, id := range ids {
		rec, err := ds.LoadAggregate(ctx, id)
		if err != nil {
			return nil, err
		}

		if rec.Revision == 0 {
			// Already removed by someone else.
			continue
		}

		batch = append(batch, persistence.RemoveAggregate{
			InstanceID: id,
			Revision:   rec.Revision,
		})
	}

	return batch, nil
}

// persistChunk bulk-persists a chunk of sweep operations, retrying failed
// operations once with fresh revisions. Operations that fail for capacity
// reasons are not retried.
//
// It returns the number of operations that persisted.
func (s *Sweeper) persistChunk(
	ctx context.Context,
	ds persistence.DataStore,
	batch persistence.Batch,
) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	res, err := ds.PersistBulk(ctx, batch)
	if err != nil {
		return 0, err
	}

	failed := res.Failed()
	ok := len(batch) - len(failed)

	var retry persistence.Batch

	for _, item := range failed {
		if item.IsCapacityError() {
			logging.Log(
				s.Logger,
				"skipping sweep operation: %s",
				item.Err,
			)
			continue
		}

		op, err := s.refreshRevision(ctx, ds, item.Op)
		if err != nil {
			return ok, err
		}

		if op != nil {
			retry = append(retry, op)
		}
	}

	if len(retry) == 0 {
		return ok, nil
	}

	res, err = ds.PersistBulk(ctx, retry)
	if err != nil {
		return ok, err
	}

	for _, item := range res.Failed() {
		logging.Log(
			s.Logger,
			"abandoning sweep operation until next sweep: %s",
			item.Err,
		)
	}

	return ok + len(retry) - len(res.Failed()), nil
}

// refreshRevision rebuilds a sweep operation against the instance's current
// revision.
//
// It returns nil if the operation is no longer necessary.
func (s *Sweeper) refreshRevision(
	ctx context.Context,
	ds persistence.DataStore,
	op persistence.Operation,
) (persistence.Operation, error) {
	switch op := op.(type) {
	case persistence.RemoveAggregate:
		rec, err := ds.LoadAggregate(ctx, op.InstanceID)
		if err != nil {
			return nil, err
		}

		if rec.Revision == 0 {
			return nil, nil
		}

		op.Revision = rec.Revision

		return op, nil

	case persistence.ClearVariables:
		rec, err := ds.LoadAggregate(ctx, op.InstanceID)
		if err != nil {
			return nil, err
		}

		if rec.Revision == 0 || len(rec.Aggregate.Variables) == 0 {
			return nil, nil
		}

		op.Revision = rec.Revision

		return op, nil

	default:
		return nil, nil
	}
}

// clearVariables clears the variables of instances that ended more than
// VariableRetention ago but are not yet old enough to be removed.
func (s *Sweeper) clearVariables(
	ctx context.Context,
	k string,
	ds persistence.DataStore,
) error {
	cutoff := time.Now().Add(-s.VariableRetention)
	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	// Clearing does not remove the document, so the IDs are loaded in a
	// single pass and chunked locally.
	ids, err := ds.LoadStaleAggregateIDs(ctx, cutoff, 0)
	if err != nil {
		return err
	}

	var batch persistence.Batch

	flush := func() error {
		cleared, err := s.persistChunk(ctx, ds, batch)
		if err != nil {
			return err
		}

		if cleared > 0 {
			logging.Debug(
				s.Logger,
				"definition %s: cleared variables of %d instance(s)",
				k,
				cleared,
			)
		}

		batch = nil

		return nil
	}

	for _, id := range ids {
		rec, err := ds.LoadAggregate(ctx, id)
		if err != nil {
			return err
		}

		if rec.Revision == 0 || len(rec.Aggregate.Variables) == 0 {
			continue
		}

		batch = append(batch, persistence.ClearVariables{
			InstanceID: id,
			Revision:   rec.Revision,
		})

		if len(batch) >= chunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}
