package instance

import "time"

// State describes the lifecycle state of a process instance.
type State string

const (
	// StateActive indicates that the instance has not yet reached an end
	// event.
	StateActive State = "ACTIVE"

	// StateCompleted indicates that the instance has reached an end event.
	StateCompleted State = "COMPLETED"
)

// Aggregate is the reconstructed analytics record of one execution of a
// process.
//
// It is owned exclusively by the reconciliation process. It is only ever
// persisted as a whole document, never via partial field writes.
type Aggregate struct {
	// ID is the process instance ID. It is the document key.
	ID string `json:"id"`

	// DefinitionKey identifies the process definition this instance was
	// started from.
	DefinitionKey string `json:"definitionKey"`

	// DefinitionVersion is the version of the process definition.
	DefinitionVersion string `json:"definitionVersion"`

	// StartDate is the start date of the earliest start-event occurrence.
	// It is nil until such an occurrence with a start date is observed.
	StartDate *time.Time `json:"startDate,omitempty"`

	// EndDate is the end date of the latest end-event occurrence. It is nil
	// while the instance is still running.
	EndDate *time.Time `json:"endDate,omitempty"`

	// DurationInMillis is EndDate - StartDate. It is nil unless both dates
	// are known.
	DurationInMillis *int64 `json:"durationInMs,omitempty"`

	// State is ACTIVE until EndDate is known, COMPLETED afterwards.
	State State `json:"state"`

	// Variables is the set of process variables, unique by variable ID.
	Variables []Variable `json:"variables,omitempty"`

	// FlowNodes is the set of flow node occurrences, unique by flow node
	// instance ID. It contains both observed occurrences and synthesized
	// gateway occurrences.
	FlowNodes []FlowNode `json:"flowNodeInstances,omitempty"`

	// Incidents is the set of incidents, unique by incident ID.
	Incidents []Incident `json:"incidents,omitempty"`

	// CorrelatedEvents records, per source event ID, which flow node
	// occurrences that event has already been bound to. Entries are never
	// removed once correlated.
	CorrelatedEvents map[string]Correlation `json:"correlatedEventsById,omitempty"`

	// PendingUpdates is the set of correlation directives that have not yet
	// found an eligible flow node occurrence, unique by update ID.
	PendingUpdates []PendingUpdate `json:"pendingFlowNodeInstanceUpdates,omitempty"`
}

// Variable is a single process variable, identified by ID.
type Variable struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Clone returns a deep copy of the aggregate.
//
// The reconciler operates on a clone so that a failed write never leaves a
// partially merged aggregate behind.
func (a Aggregate) Clone() Aggregate {
	c := a

	c.StartDate = cloneTime(a.StartDate)
	c.EndDate = cloneTime(a.EndDate)
	c.DurationInMillis = cloneInt64(a.DurationInMillis)

	c.Variables = append([]Variable(nil), a.Variables...)
	c.PendingUpdates = append([]PendingUpdate(nil), a.PendingUpdates...)

	if a.FlowNodes != nil {
		c.FlowNodes = make([]FlowNode, len(a.FlowNodes))
		for i, n := range a.FlowNodes {
			c.FlowNodes[i] = n.Clone()
		}
	}

	if a.Incidents != nil {
		c.Incidents = make([]Incident, len(a.Incidents))
		for i, n := range a.Incidents {
			c.Incidents[i] = n.Clone()
		}
	}

	if a.CorrelatedEvents != nil {
		c.CorrelatedEvents = make(map[string]Correlation, len(a.CorrelatedEvents))
		for id, corr := range a.CorrelatedEvents {
			c.CorrelatedEvents[id] = corr.Clone()
		}
	}

	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t
	return &v
}

func cloneInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}

	v := *n
	return &v
}
