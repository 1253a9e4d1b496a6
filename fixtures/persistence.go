package fixtures

import (
	"context"
	"time"

	"github.com/dogmatiq/retrospect/persistence"
	"github.com/dogmatiq/retrospect/persistence/memorypersistence"
)

// ProviderStub is a test implementation of the persistence.Provider
// interface.
type ProviderStub struct {
	persistence.Provider

	OpenFunc func(context.Context, string) (persistence.DataStore, error)
}

// Open returns the data-store for a specific process definition.
func (p *ProviderStub) Open(ctx context.Context, k string) (persistence.DataStore, error) {
	if p.OpenFunc != nil {
		return p.OpenFunc(ctx, k)
	}

	if p.Provider != nil {
		ds, err := p.Provider.Open(ctx, k)
		if ds != nil {
			ds = &DataStoreStub{DataStore: ds}
		}
		return ds, err
	}

	return nil, nil
}

// DataStoreStub is a test implementation of the persistence.DataStore
// interface.
type DataStoreStub struct {
	persistence.DataStore

	LoadAggregateFunc         func(context.Context, string) (persistence.AggregateRecord, error)
	LoadTaskStateFunc         func(context.Context, string) (persistence.TaskStateRecord, error)
	LoadStaleAggregateIDsFunc func(context.Context, time.Time, int) ([]string, error)
	PersistFunc               func(context.Context, persistence.Batch) (persistence.Result, error)
	PersistBulkFunc           func(context.Context, persistence.Batch) (persistence.BulkResult, error)
	CloseFunc                 func() error
}

// NewDataStoreStub returns a new data-store stub that uses an in-memory
// persistence provider.
func NewDataStoreStub() *DataStoreStub {
	p := &ProviderStub{
		Provider: &memorypersistence.Provider{},
	}

	ds, err := p.Open(context.Background(), "<definition-key>")
	if err != nil {
		panic(err)
	}

	return ds.(*DataStoreStub)
}

// LoadAggregate loads the aggregate document for a specific process
// instance.
func (ds *DataStoreStub) LoadAggregate(
	ctx context.Context,
	id string,
) (persistence.AggregateRecord, error) {
	if ds.LoadAggregateFunc != nil {
		return ds.LoadAggregateFunc(ctx, id)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadAggregate(ctx, id)
	}

	return persistence.AggregateRecord{}, nil
}

// LoadTaskState loads the user-task state document for a specific task.
func (ds *DataStoreStub) LoadTaskState(
	ctx context.Context,
	id string,
) (persistence.TaskStateRecord, error) {
	if ds.LoadTaskStateFunc != nil {
		return ds.LoadTaskStateFunc(ctx, id)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadTaskState(ctx, id)
	}

	return persistence.TaskStateRecord{}, nil
}

// LoadStaleAggregateIDs returns the IDs of up to n completed instances that
// ended before the given cut-off time.
func (ds *DataStoreStub) LoadStaleAggregateIDs(
	ctx context.Context,
	endedBefore time.Time,
	n int,
) ([]string, error) {
	if ds.LoadStaleAggregateIDsFunc != nil {
		return ds.LoadStaleAggregateIDsFunc(ctx, endedBefore, n)
	}

	if ds.DataStore != nil {
		return ds.DataStore.LoadStaleAggregateIDs(ctx, endedBefore, n)
	}

	return nil, nil
}

// Persist commits a batch of operations atomically.
func (ds *DataStoreStub) Persist(
	ctx context.Context,
	b persistence.Batch,
) (persistence.Result, error) {
	if ds.PersistFunc != nil {
		return ds.PersistFunc(ctx, b)
	}

	if ds.DataStore != nil {
		return ds.DataStore.Persist(ctx, b)
	}

	return persistence.Result{}, nil
}

// PersistBulk applies each operation in the batch independently.
func (ds *DataStoreStub) PersistBulk(
	ctx context.Context,
	b persistence.Batch,
) (persistence.BulkResult, error) {
	if ds.PersistBulkFunc != nil {
		return ds.PersistBulkFunc(ctx, b)
	}

	if ds.DataStore != nil {
		return ds.DataStore.PersistBulk(ctx, b)
	}

	return persistence.BulkResult{}, nil
}

// Close closes the data store.
func (ds *DataStoreStub) Close() error {
	if ds.CloseFunc != nil {
		return ds.CloseFunc()
	}

	if ds.DataStore != nil {
		return ds.DataStore.Close()
	}

	return nil
}
