package memorypersistence

import (
	"encoding/json"
	"sync"

	"github.com/dogmatiq/retrospect/persistence"
)

// database is the in-memory storage for the documents of one process
// definition.
type database struct {
	maxDocumentSize int

	mutex      sync.RWMutex
	open       bool
	aggregates map[string]persistence.AggregateRecord
	tasks      map[string]persistence.TaskStateRecord
}

// TryOpen attempts to claim exclusive use of the database. It returns false
// if the database is already in use.
func (db *database) TryOpen() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.open {
		return false
	}

	db.open = true

	return true
}

// Close releases exclusive use of the database. The data itself is retained
// for the next open.
func (db *database) Close() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.open = false
}

// checkCapacity returns a CapacityError if the encoded form of doc exceeds
// the database's maximum document size.
func (db *database) checkCapacity(op persistence.Operation, doc interface{}) error {
	if db.maxDocumentSize == 0 {
		return nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	if len(data) > db.maxDocumentSize {
		return persistence.CapacityError{
			Cause:  op,
			Reason: "maximum document size exceeded",
		}
	}

	return nil
}
