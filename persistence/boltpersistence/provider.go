package boltpersistence

import (
	"context"
	"os"
	"sync"

	"github.com/dogmatiq/retrospect/internal/x/bboltx"
	"github.com/dogmatiq/retrospect/persistence"
	"go.etcd.io/bbolt"
)

// Provider is an implementation of persistence.Provider for BoltDB that uses
// an existing open database.
type Provider struct {
	provider

	// DB is the BoltDB database to use.
	DB *bbolt.DB

	// MaxDocumentSize is the maximum size, in bytes of encoded JSON, of a
	// single document. Writes that exceed it fail with a CapacityError.
	// If it is zero there is no limit.
	MaxDocumentSize int
}

// Open returns the data-store for a specific process definition.
//
// k is the definition key. Data stores are opened for exclusive use; if the
// definition's data-store is already open, ErrDataStoreLocked is returned.
func (p *Provider) Open(ctx context.Context, k string) (persistence.DataStore, error) {
	return p.open(
		ctx,
		k,
		p.MaxDocumentSize,
		func() (*bbolt.DB, error) {
			return p.DB, nil
		},
		func(*bbolt.DB) error {
			// Don't actually close the database, since we didn't open it.
			return nil
		},
	)
}

// FileProvider is an implementation of persistence.Provider for BoltDB that
// opens a BoltDB database file.
type FileProvider struct {
	provider

	// Path is the path to the BoltDB database to open or create.
	Path string

	// Mode is the file mode for the created file.
	// If it is zero, 0600 (owner read/write only) is used.
	Mode os.FileMode

	// Options is the BoltDB options for the database.
	// If it is nil, bbolt.DefaultOptions is used.
	Options *bbolt.Options

	// MaxDocumentSize is the maximum size, in bytes of encoded JSON, of a
	// single document. Writes that exceed it fail with a CapacityError.
	// If it is zero there is no limit.
	MaxDocumentSize int
}

// Open returns the data-store for a specific process definition.
//
// k is the definition key. Data stores are opened for exclusive use; if the
// definition's data-store is already open, ErrDataStoreLocked is returned.
func (p *FileProvider) Open(ctx context.Context, k string) (persistence.DataStore, error) {
	return p.open(
		ctx,
		k,
		p.MaxDocumentSize,
		func() (*bbolt.DB, error) {
			return bboltx.Open(ctx, p.Path, p.Mode, p.Options)
		},
		func(db *bbolt.DB) error {
			return db.Close()
		},
	)
}

// provider is the common implementation of Provider and FileProvider.
type provider struct {
	m       sync.Mutex
	db      *bbolt.DB
	close   func(db *bbolt.DB) error
	openSet map[string]struct{}
}

// open returns the data-store for a specific process definition, opening
// the underlying database on first use.
func (p *provider) open(
	_ context.Context,
	k string,
	maxDocumentSize int,
	open func() (*bbolt.DB, error),
	close func(db *bbolt.DB) error,
) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.db == nil {
		db, err := open()
		if err != nil {
			return nil, err
		}

		p.db = db
		p.close = close
	}

	if p.openSet == nil {
		p.openSet = map[string]struct{}{}
	}

	if _, ok := p.openSet[k]; ok {
		return nil, persistence.ErrDataStoreLocked
	}

	p.openSet[k] = struct{}{}

	return &dataStore{
		db:              p.db,
		defKey:          []byte(k),
		maxDocumentSize: maxDocumentSize,
		release:         p.release,
	}, nil
}

// release marks the data-store for definition key k as closed, closing the
// underlying database if no other data-stores remain open.
func (p *provider) release(k string) error {
	p.m.Lock()
	defer p.m.Unlock()

	delete(p.openSet, k)

	if len(p.openSet) > 0 {
		return nil
	}

	db := p.db
	close := p.close

	p.db = nil
	p.close = nil

	if db == nil {
		return nil
	}

	return close(db)
}
