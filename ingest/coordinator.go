package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/retrospect/internal/x/loggingx"
	"github.com/dogmatiq/retrospect/internal/x/syncx"
	"github.com/dogmatiq/retrospect/oplog"
	"github.com/dogmatiq/retrospect/persistence"
	"github.com/dogmatiq/retrospect/reconcile"
	"github.com/dogmatiq/retrospect/topology"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Coordinator ingests batches of updates, reconciling each affected process
// instance and writing the result back to the store.
//
// Batches may arrive unordered and may overlap. The coordinator serializes
// work on each individual document, and relies on optimistic concurrency to
// detect writes that raced with another process.
type Coordinator struct {
	dataStores *persistence.DataStoreSet
	topologies topology.Provider
	opts       *options

	instances syncx.MutexNamespace
	tasks     syncx.MutexNamespace
}

// New returns a coordinator that reconciles updates against the data-stores
// in ds, using topologies to synthesize gateway activity.
func New(
	ds *persistence.DataStoreSet,
	topologies topology.Provider,
	options ...Option,
) *Coordinator {
	return &Coordinator{
		dataStores: ds,
		topologies: topologies,
		opts:       resolveOptions(options),
	}
}

// Ingest applies a batch of process instance updates.
//
// Updates for distinct instances are reconciled concurrently. Updates for
// the same instance are applied sequentially, in the order they appear in
// the batch. Because applying an update is idempotent, redelivery of a
// previously applied batch converges to the same documents.
//
// A non-nil error means the batch as a whole could not be processed, such
// as when the store is unavailable, and the entire batch should be
// redelivered. Failures scoped to an individual instance are reported in
// the returned report instead.
func (c *Coordinator) Ingest(
	ctx context.Context,
	updates []reconcile.Update,
) (Report, error) {
	rep := Report{
		BatchID: uuid.NewString(),
	}
	logger := loggingx.WithPrefix(
		c.opts.Logger,
		"batch %s: ",
		rep.BatchID,
	)

	groups, malformed := groupUpdates(updates, logger)
	rep.Outcomes = append(rep.Outcomes, malformed...)

	outcomes := make([]Outcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(c.opts.ConcurrencyLimit))

	for i, grp := range groups {
		i, grp := i, grp

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			o, err := c.reconcileInstance(gctx, logger, grp)
			if err != nil {
				return err
			}

			outcomes[i] = o

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep.Outcomes = append(rep.Outcomes, outcomes...)

	return rep, nil
}

// reconcileInstance applies a group of updates to a single process
// instance.
//
// A non-nil error is batch-fatal. Failures scoped to the instance are
// reported in the outcome instead.
func (c *Coordinator) reconcileInstance(
	ctx context.Context,
	logger logging.Logger,
	grp updateGroup,
) (Outcome, error) {
	unlock, err := c.instances.Lock(ctx, grp.InstanceID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	ds, err := c.dataStores.Get(ctx, grp.DefinitionKey)
	if err != nil {
		return Outcome{}, err
	}

	nodes, err := c.topologies.GetGatewayTopology(ctx, grp.DefinitionKey)
	if err != nil {
		return Outcome{
			ID:    grp.InstanceID,
			Class: FailureOther,
			Err:   fmt.Errorf("unable to resolve gateway topology: %w", err),
		}, nil
	}

	counter := &backoff.Counter{
		Strategy: c.opts.WriteBackoff,
	}

	for attempt := uint(1); ; attempt++ {
		rec, err := ds.LoadAggregate(ctx, grp.InstanceID)
		if err != nil {
			return Outcome{}, err
		}

		agg := rec.Aggregate
		for _, upd := range grp.Updates {
			agg = reconcile.Reconcile(agg, upd, nodes)
		}

		_, err = ds.Persist(
			ctx,
			persistence.Batch{
				persistence.SaveAggregate{
					Record: persistence.AggregateRecord{
						InstanceID: grp.InstanceID,
						Revision:   rec.Revision,
						Aggregate:  agg,
					},
				},
			},
		)

		o, retry, err := classifyWriteError(
			grp.InstanceID,
			attempt,
			c.opts.WriteAttempts,
			err,
		)
		if err != nil {
			return Outcome{}, err
		}

		if !retry {
			if o.OK() {
				logging.Debug(
					logger,
					"instance %s reconciled from %d update(s)",
					grp.InstanceID,
					len(grp.Updates),
				)
			} else {
				logging.Log(
					logger,
					"instance %s failed: %s",
					grp.InstanceID,
					o.Err,
				)
			}

			return o, nil
		}

		if err := counter.Sleep(ctx, nil); err != nil {
			return Outcome{}, err
		}
	}
}

// IngestOperationLog applies a batch of user-task operation log entries.
//
// Entries for distinct tasks are applied concurrently. All entries for the
// same task are folded into its state document in a single write.
func (c *Coordinator) IngestOperationLog(
	ctx context.Context,
	entries []oplog.Entry,
) (Report, error) {
	rep := Report{
		BatchID: uuid.NewString(),
	}
	logger := loggingx.WithPrefix(
		c.opts.Logger,
		"batch %s: ",
		rep.BatchID,
	)

	groups, malformed := groupEntries(entries, logger)
	rep.Outcomes = append(rep.Outcomes, malformed...)

	outcomes := make([]Outcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(c.opts.ConcurrencyLimit))

	for i, grp := range groups {
		i, grp := i, grp

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			o, err := c.projectTask(gctx, logger, grp)
			if err != nil {
				return err
			}

			outcomes[i] = o

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep.Outcomes = append(rep.Outcomes, outcomes...)

	return rep, nil
}

// projectTask folds a group of operation log entries into the state
// document of a single user task.
func (c *Coordinator) projectTask(
	ctx context.Context,
	logger logging.Logger,
	grp entryGroup,
) (Outcome, error) {
	unlock, err := c.tasks.Lock(ctx, grp.TaskID)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	ds, err := c.dataStores.Get(ctx, grp.DefinitionKey)
	if err != nil {
		return Outcome{}, err
	}

	counter := &backoff.Counter{
		Strategy: c.opts.WriteBackoff,
	}

	for attempt := uint(1); ; attempt++ {
		rec, err := ds.LoadTaskState(ctx, grp.TaskID)
		if err != nil {
			return Outcome{}, err
		}

		state := rec.State
		state.TaskID = grp.TaskID
		state.Apply(grp.Entries, logger)

		_, err = ds.Persist(
			ctx,
			persistence.Batch{
				persistence.SaveTaskState{
					Record: persistence.TaskStateRecord{
						TaskID:   grp.TaskID,
						Revision: rec.Revision,
						State:    state,
					},
				},
			},
		)

		o, retry, err := classifyWriteError(
			grp.TaskID,
			attempt,
			c.opts.WriteAttempts,
			err,
		)
		if err != nil {
			return Outcome{}, err
		}

		if !retry {
			if !o.OK() {
				logging.Log(
					logger,
					"task %s failed: %s",
					grp.TaskID,
					o.Err,
				)
			}

			return o, nil
		}

		if err := counter.Sleep(ctx, nil); err != nil {
			return Outcome{}, err
		}
	}
}

// classifyWriteError converts the error from a document write into an
// outcome.
//
// retry is true if the write should be attempted again. A non-nil error is
// batch-fatal.
func classifyWriteError(
	id string,
	attempt, limit uint,
	err error,
) (_ Outcome, retry bool, _ error) {
	if err == nil {
		return Outcome{ID: id}, false, nil
	}

	if errors.Is(err, persistence.ErrDataStoreClosed) {
		return Outcome{}, false, err
	}

	var conflict persistence.ConflictError
	if errors.As(err, &conflict) {
		if attempt < limit {
			return Outcome{}, true, nil
		}

		return Outcome{
			ID:    id,
			Class: FailureConflict,
			Err:   fmt.Errorf("write attempts exhausted: %w", err),
		}, false, nil
	}

	var capacity persistence.CapacityError
	if errors.As(err, &capacity) {
		return Outcome{
			ID:    id,
			Class: FailureCapacity,
			Err:   err,
		}, false, nil
	}

	return Outcome{
		ID:    id,
		Class: FailureOther,
		Err:   err,
	}, false, nil
}
