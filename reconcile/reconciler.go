package reconcile

import (
	"sort"
	"time"

	"github.com/dogmatiq/retrospect/gateway"
	"github.com/dogmatiq/retrospect/instance"
)

// Reconcile merges an update into an existing aggregate, producing the
// converged document.
//
// existing may be the zero-value aggregate for the first write. The input is
// never mutated; the result is an independent document, so a failed write
// can simply be retried against a fresh read.
//
// Reconcile assumes upd has already been sanitized with Update.Validate().
// Given that, it is a pure function: applying the same update twice, or
// applying updates touching disjoint state in either order, converges on the
// same document.
func Reconcile(
	existing instance.Aggregate,
	upd Update,
	topology []gateway.Node,
) instance.Aggregate {
	a := existing.Clone()

	if a.ID == "" {
		a.ID = upd.InstanceID
	}

	if a.DefinitionKey == "" {
		a.DefinitionKey = upd.DefinitionKey
	}

	if a.DefinitionVersion == "" {
		a.DefinitionVersion = upd.DefinitionVersion
	}

	mergeVariables(&a, upd.Variables)
	stripSyntheticGateways(&a, topology)
	mergeFlowNodes(&a, upd.FlowNodes)
	sortFlowNodes(a.FlowNodes)
	mergeCorrelations(&a, upd.CorrelatedEvents)
	applyPendingUpdates(&a, upd.PendingUpdates)
	mergeIncidents(&a, upd.Incidents)

	a.FlowNodes = append(
		a.FlowNodes,
		gateway.Infer(topology, a.FlowNodes)...,
	)
	sortFlowNodes(a.FlowNodes)

	deriveInstanceFields(&a)

	return a
}

// mergeVariables replaces any existing variable that reappears in the
// update; the incoming value wins on ID collision.
func mergeVariables(a *instance.Aggregate, in []instance.Variable) {
	if len(in) == 0 {
		return
	}

	incoming := map[string]struct{}{}
	var merged []instance.Variable

	for _, v := range in {
		if _, ok := incoming[v.ID]; ok {
			continue
		}

		incoming[v.ID] = struct{}{}
		merged = append(merged, v)
	}

	for _, v := range a.Variables {
		if _, ok := incoming[v.ID]; !ok {
			merged = append(merged, v)
		}
	}

	// Canonical order, so that merging the same variables in any order
	// produces the same document.
	sort.SliceStable(
		merged,
		func(i, j int) bool {
			return merged[i].ID < merged[j].ID
		},
	)

	a.Variables = merged
}

// stripSyntheticGateways removes all gateway occurrences so that they can be
// regenerated from the topology. Re-deriving from scratch every cycle keeps
// the synthesized state from drifting.
func stripSyntheticGateways(a *instance.Aggregate, topology []gateway.Node) {
	if len(topology) == 0 {
		return
	}

	isGateway := make(map[string]bool, len(topology))
	for _, g := range topology {
		isGateway[g.ID] = true
	}

	var real []instance.FlowNode
	for _, f := range a.FlowNodes {
		if !isGateway[f.FlowNodeID] {
			real = append(real, f)
		}
	}

	a.FlowNodes = real
}

// mergeFlowNodes merges incoming occurrences by flow node instance ID,
// absorbing field updates into occurrences that are already known.
func mergeFlowNodes(a *instance.Aggregate, in []instance.FlowNode) {
	index := make(map[string]int, len(a.FlowNodes))
	for i, f := range a.FlowNodes {
		index[f.ID] = i
	}

	for _, f := range in {
		if i, ok := index[f.ID]; ok {
			a.FlowNodes[i].Absorb(f)
			continue
		}

		f = f.Clone()
		f.RecomputeDuration()

		index[f.ID] = len(a.FlowNodes)
		a.FlowNodes = append(a.FlowNodes, f)
	}
}

// sortFlowNodes groups occurrences by flow node ID and orders each group
// ascending by start date with unknown starts last, then by end date with
// unknown ends first.
//
// This is the order in which pending updates probe for eligible targets.
func sortFlowNodes(nodes []instance.FlowNode) {
	sort.SliceStable(
		nodes,
		func(i, j int) bool {
			a, b := nodes[i], nodes[j]

			if a.FlowNodeID != b.FlowNodeID {
				return a.FlowNodeID < b.FlowNodeID
			}

			if c := compareTimes(a.StartDate, b.StartDate, false); c != 0 {
				return c < 0
			}

			if c := compareTimes(a.EndDate, b.EndDate, true); c != 0 {
				return c < 0
			}

			return a.ID < b.ID
		},
	)
}

// compareTimes orders two optional times, placing nil values first or last.
func compareTimes(a, b *time.Time, nilFirst bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if nilFirst {
			return -1
		}
		return 1
	case b == nil:
		if nilFirst {
			return 1
		}
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	default:
		return 0
	}
}

// mergeCorrelations unions incoming role bindings into the aggregate.
// Existing bindings always win; only pairs not yet present are appended.
func mergeCorrelations(a *instance.Aggregate, in map[string]instance.Correlation) {
	if len(in) == 0 {
		return
	}

	if a.CorrelatedEvents == nil {
		a.CorrelatedEvents = map[string]instance.Correlation{}
	}

	for eventID, corr := range in {
		existing, ok := a.CorrelatedEvents[eventID]
		if !ok {
			existing = instance.Correlation{}
			a.CorrelatedEvents[eventID] = existing
		}

		for role, ids := range corr {
			for _, id := range ids {
				existing.Bind(role, id)
			}
		}
	}
}

// applyPendingUpdates merges incoming pending updates into the pending set
// (incoming replaces an existing update with the same ID), then applies the
// full set in ascending date order. Updates that find no eligible target
// stay pending.
func applyPendingUpdates(a *instance.Aggregate, in []instance.PendingUpdate) {
	index := make(map[string]int, len(a.PendingUpdates))
	for i, p := range a.PendingUpdates {
		index[p.ID] = i
	}

	for _, p := range in {
		if i, ok := index[p.ID]; ok {
			a.PendingUpdates[i] = p
			continue
		}

		index[p.ID] = len(a.PendingUpdates)
		a.PendingUpdates = append(a.PendingUpdates, p)
	}

	sort.SliceStable(
		a.PendingUpdates,
		func(i, j int) bool {
			if a.PendingUpdates[i].Date.Equal(a.PendingUpdates[j].Date) {
				return a.PendingUpdates[i].ID < a.PendingUpdates[j].ID
			}

			return a.PendingUpdates[i].Date.Before(a.PendingUpdates[j].Date)
		},
	)

	var remaining []instance.PendingUpdate
	for _, p := range a.PendingUpdates {
		if !applyPendingUpdate(a, p) {
			remaining = append(remaining, p)
		}
	}

	a.PendingUpdates = remaining
}

// applyPendingUpdate attempts to bind a single pending update to an eligible
// occurrence. It returns false if no occurrence accepts the update.
//
// An occurrence is eligible if it is already bound to the update's source
// event under the update's role, or if the date field the update sets is
// still unknown. An unbound occurrence rejects the update if applying it
// would put the start after the end; without that guard, loop and split
// shapes would bind events to the wrong iteration.
func applyPendingUpdate(a *instance.Aggregate, p instance.PendingUpdate) bool {
	corr := a.CorrelatedEvents[p.SourceEventID]

	for i := range a.FlowNodes {
		f := &a.FlowNodes[i]

		if f.FlowNodeID != p.FlowNodeID {
			continue
		}

		bound := corr.IsBound(p.MappedAs, f.ID)

		start, end := f.StartDate, f.EndDate
		d := p.Date

		if p.MappedAs == instance.RoleStart {
			if !bound && start != nil {
				continue
			}
			start = &d
		} else {
			if !bound && end != nil {
				continue
			}
			end = &d
		}

		if !bound && start != nil && end != nil && start.After(*end) {
			continue
		}

		f.StartDate = start
		f.EndDate = end
		f.RecomputeDuration()

		if a.CorrelatedEvents == nil {
			a.CorrelatedEvents = map[string]instance.Correlation{}
		}

		if corr == nil {
			corr = instance.Correlation{}
			a.CorrelatedEvents[p.SourceEventID] = corr
		}

		corr.Bind(p.MappedAs, f.ID)

		return true
	}

	return false
}

// mergeIncidents merges incoming incidents by ID, then remaps incident
// activity references from flow node instance IDs to topology node IDs now
// that the occurrences are known.
func mergeIncidents(a *instance.Aggregate, in []instance.Incident) {
	index := make(map[string]int, len(a.Incidents))
	for i, inc := range a.Incidents {
		index[inc.ID] = i
	}

	for _, inc := range in {
		if i, ok := index[inc.ID]; ok {
			a.Incidents[i].Absorb(inc)
			continue
		}

		inc = inc.Clone()
		inc.RecomputeDuration()

		index[inc.ID] = len(a.Incidents)
		a.Incidents = append(a.Incidents, inc)
	}

	if len(a.Incidents) == 0 {
		return
	}

	nodeByOccurrence := make(map[string]string, len(a.FlowNodes))
	for _, f := range a.FlowNodes {
		nodeByOccurrence[f.ID] = f.FlowNodeID
	}

	for i := range a.Incidents {
		if id, ok := nodeByOccurrence[a.Incidents[i].ActivityID]; ok {
			a.Incidents[i].ActivityID = id
		}
	}
}

// deriveInstanceFields computes the instance-level start, end, state and
// duration from the merged occurrences.
func deriveInstanceFields(a *instance.Aggregate) {
	// Occurrences are never removed, so the dates can be recomputed from
	// scratch. Folding into the previous values would pin a date that a
	// later occurrence update moved inward.
	a.StartDate = nil
	a.EndDate = nil

	for _, f := range a.FlowNodes {
		switch f.FlowNodeType {
		case instance.FlowNodeTypeStartEvent:
			if f.StartDate != nil &&
				(a.StartDate == nil || f.StartDate.Before(*a.StartDate)) {
				t := *f.StartDate
				a.StartDate = &t
			}

		case instance.FlowNodeTypeEndEvent:
			if f.EndDate != nil &&
				(a.EndDate == nil || f.EndDate.After(*a.EndDate)) {
				t := *f.EndDate
				a.EndDate = &t
			}
		}
	}

	if a.EndDate != nil {
		a.State = instance.StateCompleted
	} else {
		a.State = instance.StateActive
	}

	if a.StartDate != nil && a.EndDate != nil {
		d := a.EndDate.Sub(*a.StartDate).Milliseconds()
		a.DurationInMillis = &d
	} else {
		a.DurationInMillis = nil
	}
}
