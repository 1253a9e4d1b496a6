package gateway

import (
	"sort"
	"strconv"
	"time"

	"github.com/dogmatiq/retrospect/instance"
)

// Infer synthesizes virtual gateway occurrences from the static topology and
// the set of observed flow node occurrences.
//
// It is pure and deterministic. Synthesized occurrence IDs are of the form
// "<gatewayID>_<n>" with n counting from 1 per gateway per call, so
// re-derivation from identical inputs always produces identical output.
//
// real must not contain gateway occurrences; the reconciler strips them
// before re-deriving.
func Infer(topology []Node, real []instance.FlowNode) []instance.FlowNode {
	if len(topology) == 0 {
		return nil
	}

	isGateway := make(map[string]bool, len(topology))
	for _, g := range topology {
		isGateway[g.ID] = true
	}

	byNode := map[string][]instance.FlowNode{}
	for _, f := range real {
		byNode[f.FlowNodeID] = append(byNode[f.FlowNodeID], f)
	}

	var out []instance.FlowNode
	for _, g := range topology {
		out = append(
			out,
			inferForGateway(g, isGateway, byNode)...,
		)
	}

	return out
}

// inferForGateway synthesizes the occurrences of a single gateway.
//
// A gateway that qualifies as both opening and closing is treated as
// opening; the opening rules take precedence, with the event-based rule
// checked first.
func inferForGateway(
	g Node,
	isGateway map[string]bool,
	byNode map[string][]instance.FlowNode,
) []instance.FlowNode {
	e := &emitter{gateway: g}

	switch {
	case g.IsOpening():
		pred := g.PreviousNodeIDs[0]

		switch {
		case g.Type == EventBased && !isGateway[pred]:
			// The gateway was entered when its predecessor ended, and left
			// when the chosen event occurred. Pair each predecessor
			// occurrence with a successor occurrence, FIFO, until either
			// side is exhausted.
			preds := orderedByEnd(byNode[pred])
			succs := successorOccurrences(g, byNode)

			for i := 0; i < len(preds) && i < len(succs); i++ {
				e.emit(preds[i].EndDate, succs[i].StartDate)
			}

		case isGateway[pred]:
			// A preceding gateway has no observable occurrence of its own,
			// so each successor occurrence marks one pass through this
			// gateway.
			for _, occ := range successorOccurrences(g, byNode) {
				e.emit(occ.StartDate, occ.StartDate)
			}

		default:
			// Exclusive and parallel splits take no time; each end of the
			// predecessor is one pass through the gateway.
			for _, occ := range orderedByEnd(byNode[pred]) {
				e.emit(occ.EndDate, occ.EndDate)
			}
		}

	case g.IsClosing():
		succ := g.NextNodeIDs[0]

		switch {
		case g.Type == Exclusive && !isGateway[succ]:
			for _, occ := range orderedByStart(byNode[succ]) {
				e.emit(occ.StartDate, occ.StartDate)
			}

		case g.Type == Exclusive:
			for _, occ := range predecessorOccurrences(g, byNode) {
				e.emit(occ.EndDate, occ.EndDate)
			}

		case g.Type == Parallel:
			e.emitParallelJoins(isGateway, byNode)
		}
	}

	return e.out
}

// emitParallelJoins synthesizes the occurrences of a closing parallel
// gateway.
//
// Each pass through the join consumes one occurrence of every incoming
// branch. The pass starts when the first of the consumed occurrences ended
// and ends when the last of them ended.
func (e *emitter) emitParallelJoins(
	isGateway map[string]bool,
	byNode map[string][]instance.FlowNode,
) {
	var queues [][]instance.FlowNode
	for _, id := range e.gateway.PreviousNodeIDs {
		if !isGateway[id] {
			queues = append(queues, orderedByEnd(byNode[id]))
		}
	}

	if len(queues) == 0 {
		return
	}

	for {
		var first, last *instance.FlowNode

		for i := range queues {
			if len(queues[i]) == 0 {
				return
			}

			occ := queues[i][0]
			queues[i] = queues[i][1:]

			if first == nil || occ.EndDate.Before(*first.EndDate) {
				first = &occ
			}

			if last == nil || occ.EndDate.After(*last.EndDate) {
				last = &occ
			}
		}

		e.emit(first.EndDate, last.EndDate)
	}
}

// emitter accumulates the synthesized occurrences of a single gateway,
// assigning sequential IDs.
type emitter struct {
	gateway Node
	seq     int
	out     []instance.FlowNode
}

func (e *emitter) emit(start, end *time.Time) {
	e.seq++

	f := instance.FlowNode{
		ID:           e.gateway.ID + "_" + strconv.Itoa(e.seq),
		FlowNodeID:   e.gateway.ID,
		FlowNodeType: string(e.gateway.Type),
	}

	if start != nil {
		t := *start
		f.StartDate = &t
	}

	if end != nil {
		t := *end
		f.EndDate = &t
	}

	f.RecomputeDuration()

	e.out = append(e.out, f)
}

// successorOccurrences returns the occurrences of all of g's successor
// nodes that have a start date, in ascending start date order.
func successorOccurrences(g Node, byNode map[string][]instance.FlowNode) []instance.FlowNode {
	var occs []instance.FlowNode
	for _, id := range g.NextNodeIDs {
		occs = append(occs, byNode[id]...)
	}

	return orderedByStart(occs)
}

// predecessorOccurrences returns the occurrences of all of g's predecessor
// nodes that have an end date, in ascending end date order.
func predecessorOccurrences(g Node, byNode map[string][]instance.FlowNode) []instance.FlowNode {
	var occs []instance.FlowNode
	for _, id := range g.PreviousNodeIDs {
		occs = append(occs, byNode[id]...)
	}

	return orderedByEnd(occs)
}

func orderedByStart(occs []instance.FlowNode) []instance.FlowNode {
	var out []instance.FlowNode
	for _, occ := range occs {
		if occ.StartDate != nil {
			out = append(out, occ)
		}
	}

	sort.SliceStable(
		out,
		func(i, j int) bool {
			if out[i].StartDate.Equal(*out[j].StartDate) {
				return out[i].ID < out[j].ID
			}

			return out[i].StartDate.Before(*out[j].StartDate)
		},
	)

	return out
}

func orderedByEnd(occs []instance.FlowNode) []instance.FlowNode {
	var out []instance.FlowNode
	for _, occ := range occs {
		if occ.EndDate != nil {
			out = append(out, occ)
		}
	}

	sort.SliceStable(
		out,
		func(i, j int) bool {
			if out[i].EndDate.Equal(*out[j].EndDate) {
				return out[i].ID < out[j].ID
			}

			return out[i].EndDate.Before(*out[j].EndDate)
		},
	)

	return out
}
