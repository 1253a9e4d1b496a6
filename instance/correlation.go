package instance

import "time"

// Role identifies which side of a flow node occurrence an ingested event is
// mapped onto.
type Role string

const (
	// RoleStart maps an event onto the start date of an occurrence.
	RoleStart Role = "START"

	// RoleEnd maps an event onto the end date of an occurrence.
	RoleEnd Role = "END"
)

// Correlation records the flow node occurrences a single source event has
// been bound to, per role.
//
// It is append-only; a binding is never removed once made.
type Correlation map[Role][]string

// IsBound returns true if the occurrence with the given flow node instance
// ID is already bound under role r.
func (c Correlation) IsBound(r Role, flowNodeInstanceID string) bool {
	for _, id := range c[r] {
		if id == flowNodeInstanceID {
			return true
		}
	}

	return false
}

// Bind records that the occurrence with the given flow node instance ID is
// bound under role r. It is a no-op if the binding already exists.
func (c Correlation) Bind(r Role, flowNodeInstanceID string) {
	if !c.IsBound(r, flowNodeInstanceID) {
		c[r] = append(c[r], flowNodeInstanceID)
	}
}

// Clone returns a deep copy of the correlation.
func (c Correlation) Clone() Correlation {
	if c == nil {
		return nil
	}

	o := make(Correlation, len(c))
	for r, ids := range c {
		o[r] = append([]string(nil), ids...)
	}

	return o
}

// PendingUpdate is a correlation directive that could not be applied when it
// was ingested, typically because no eligible target occurrence existed yet.
//
// It remains part of the aggregate until it is successfully applied.
type PendingUpdate struct {
	// ID is the update's identity, used for deduplication on merge.
	ID string `json:"id"`

	// SourceEventID identifies the ingested event this directive originated
	// from.
	SourceEventID string `json:"sourceEventId"`

	// FlowNodeID is the topology node whose occurrences are candidate
	// targets.
	FlowNodeID string `json:"flowNodeId"`

	// MappedAs is the role the event is mapped onto.
	MappedAs Role `json:"mappedAs"`

	// Date is the timestamp the update carries. Pending updates are always
	// applied in ascending date order.
	Date time.Time `json:"date"`
}
