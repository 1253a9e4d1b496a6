package persistence

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
)

// ErrDataStoreClosed is returned when performing any persistence operation
// on a closed data-store.
var ErrDataStoreClosed = errors.New("data store is closed")

// ErrDataStoreLocked is returned by Provider.Open() if a data-store is
// already open for exclusive use elsewhere.
var ErrDataStoreLocked = errors.New("data store is locked")

// DataStore is an interface for persisting and retrieving the documents of
// a single process definition.
type DataStore interface {
	Repository
	Persister
	BulkPersister

	// Close closes the data store.
	//
	// Closing a data-store causes any future calls to Persist() or
	// PersistBulk() to return ErrDataStoreClosed. The behavior of read
	// operations on a closed data-store is implementation-defined.
	Close() error
}

// Provider is an interface for opening data-stores.
type Provider interface {
	// Open returns the data-store for a specific process definition.
	//
	// k is the definition key. Data stores are opened for exclusive use;
	// if the definition's data-store is already open, ErrDataStoreLocked
	// is returned.
	Open(ctx context.Context, k string) (DataStore, error)
}

// DataStoreSet is a collection of data-stores, one per process definition.
type DataStoreSet struct {
	// Provider is used to open data-stores on first use.
	Provider Provider

	m      sync.Mutex
	stores map[string]DataStore
}

// Get returns the data store for a given process definition.
//
// If the set already contains a data-store for the definition it is
// returned, otherwise it is opened and added to the set. The caller is NOT
// responsible for closing the data store.
func (s *DataStoreSet) Get(ctx context.Context, k string) (DataStore, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if ds, ok := s.stores[k]; ok {
		return ds, nil
	}

	ds, err := s.Provider.Open(ctx, k)
	if err != nil {
		return nil, err
	}

	if s.stores == nil {
		s.stores = map[string]DataStore{}
	}

	s.stores[k] = ds

	return ds, nil
}

// Close closes all data-stores in the set.
func (s *DataStoreSet) Close() error {
	s.m.Lock()
	defer s.m.Unlock()

	stores := s.stores
	s.stores = nil

	var err error
	for _, ds := range stores {
		err = multierr.Append(
			err,
			ds.Close(),
		)
	}

	return err
}
