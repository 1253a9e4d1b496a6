package reconcile

import (
	"fmt"

	"github.com/dogmatiq/retrospect/instance"
	"go.uber.org/multierr"
)

// Update is one incoming batch of changes to a single process instance.
//
// Updates are delivered at-least-once and possibly out of order; the
// reconciler merges them into the aggregate such that repeated or reordered
// delivery converges on the same document.
type Update struct {
	// InstanceID is the process instance the update applies to.
	InstanceID string `json:"instanceId"`

	// DefinitionKey identifies the process definition, used to locate the
	// instance's document store and gateway topology.
	DefinitionKey string `json:"definitionKey"`

	// DefinitionVersion is the version of the process definition.
	DefinitionVersion string `json:"definitionVersion,omitempty"`

	Variables []instance.Variable `json:"variables,omitempty"`
	FlowNodes []instance.FlowNode `json:"flowNodeInstances,omitempty"`
	Incidents []instance.Incident `json:"incidents,omitempty"`

	// CorrelatedEvents are role bindings established by the producer.
	CorrelatedEvents map[string]instance.Correlation `json:"correlatedEventsById,omitempty"`

	// PendingUpdates are correlation directives to be applied to eligible
	// flow node occurrences.
	PendingUpdates []instance.PendingUpdate `json:"pendingCorrelationUpdates,omitempty"`
}

// Validate checks the update and strips any entries that are individually
// malformed.
//
// It returns the sanitized update and an error aggregating one entry per
// rejected record. A non-nil error does not invalidate the returned update;
// malformed entries are reportable but never fatal to the batch.
func (u Update) Validate() (Update, error) {
	var err error

	if u.InstanceID == "" {
		return u, fmt.Errorf("update does not carry a process instance ID")
	}

	if u.DefinitionKey == "" {
		return u, fmt.Errorf(
			"update for instance %s does not carry a process definition key",
			u.InstanceID,
		)
	}

	var variables []instance.Variable
	for _, v := range u.Variables {
		if v.ID == "" {
			err = multierr.Append(err, fmt.Errorf(
				"skipping variable without an ID on instance %s",
				u.InstanceID,
			))
			continue
		}

		variables = append(variables, v)
	}
	u.Variables = variables

	var flowNodes []instance.FlowNode
	for _, f := range u.FlowNodes {
		if f.ID == "" || f.FlowNodeID == "" {
			err = multierr.Append(err, fmt.Errorf(
				"skipping flow node occurrence without an identity on instance %s",
				u.InstanceID,
			))
			continue
		}

		flowNodes = append(flowNodes, f)
	}
	u.FlowNodes = flowNodes

	var incidents []instance.Incident
	for _, i := range u.Incidents {
		if i.ID == "" {
			err = multierr.Append(err, fmt.Errorf(
				"skipping incident without an ID on instance %s",
				u.InstanceID,
			))
			continue
		}

		incidents = append(incidents, i)
	}
	u.Incidents = incidents

	var pending []instance.PendingUpdate
	for _, p := range u.PendingUpdates {
		if p.ID == "" || p.SourceEventID == "" || p.FlowNodeID == "" ||
			p.Date.IsZero() || !isValidRole(p.MappedAs) {
			err = multierr.Append(err, fmt.Errorf(
				"skipping malformed pending correlation update %q on instance %s",
				p.ID,
				u.InstanceID,
			))
			continue
		}

		pending = append(pending, p)
	}
	u.PendingUpdates = pending

	return u, err
}

func isValidRole(r instance.Role) bool {
	return r == instance.RoleStart || r == instance.RoleEnd
}
