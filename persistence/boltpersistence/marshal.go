package boltpersistence

import (
	"encoding/json"

	"github.com/dogmatiq/retrospect/instance"
	"github.com/dogmatiq/retrospect/internal/x/bboltx"
	"github.com/dogmatiq/retrospect/oplog"
	"github.com/dogmatiq/retrospect/persistence"
)

// persistedAggregate is the stored form of an aggregate record. The
// revision is stored inside the value so that a single read yields both the
// document and its version.
type persistedAggregate struct {
	Revision uint64             `json:"revision"`
	Document instance.Aggregate `json:"document"`
}

// persistedTaskState is the stored form of a task state record.
type persistedTaskState struct {
	Revision uint64          `json:"revision"`
	Document oplog.TaskState `json:"document"`
}

// marshalDocument encodes a stored record, enforcing the maximum document
// size.
//
// It panics with a bboltx.PanicSentinel on failure, for use inside a
// transaction.
func marshalDocument(
	op persistence.Operation,
	maxDocumentSize int,
	doc interface{},
) []byte {
	data, err := json.Marshal(doc)
	bboltx.Must(err)

	if maxDocumentSize > 0 && len(data) > maxDocumentSize {
		bboltx.Must(persistence.CapacityError{
			Cause:  op,
			Reason: "maximum document size exceeded",
		})
	}

	return data
}

// unmarshalDocument decodes a stored record.
//
// It panics with a bboltx.PanicSentinel on failure, for use inside a
// transaction.
func unmarshalDocument(data []byte, doc interface{}) {
	bboltx.Must(json.Unmarshal(data, doc))
}
