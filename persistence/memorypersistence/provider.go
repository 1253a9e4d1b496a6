package memorypersistence

import (
	"context"
	"sync"

	"github.com/dogmatiq/retrospect/persistence"
)

// Provider is an implementation of persistence.Provider that stores
// documents in memory.
type Provider struct {
	// MaxDocumentSize is the maximum size, in bytes of encoded JSON, of a
	// single document. Writes that exceed it fail with a CapacityError.
	// If it is zero there is no limit.
	MaxDocumentSize int

	m         sync.Mutex
	databases map[string]*database
}

// Open returns the data-store for a specific process definition.
//
// k is the definition key. Data stores are opened for exclusive use; if the
// definition's data-store is already open, ErrDataStoreLocked is returned.
func (p *Provider) Open(_ context.Context, k string) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.databases == nil {
		p.databases = map[string]*database{}
	}

	db, ok := p.databases[k]

	if !ok {
		db = &database{
			maxDocumentSize: p.MaxDocumentSize,
		}
		p.databases[k] = db
	}

	if db.TryOpen() {
		return &dataStore{db: db}, nil
	}

	return nil, persistence.ErrDataStoreLocked
}
