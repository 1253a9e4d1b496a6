package gateway

// Type is the BPMN gateway type of a topology node.
type Type string

const (
	Exclusive  Type = "exclusiveGateway"
	Parallel   Type = "parallelGateway"
	EventBased Type = "eventBasedGateway"
)

// Node is one gateway in the static topology of a process definition.
//
// Topologies are immutable once supplied; they are loaded once per
// reconciliation and never mutated.
type Node struct {
	// ID is the gateway's node ID within the process definition.
	ID string `json:"gatewayId"`

	// Type is the gateway type.
	Type Type `json:"type"`

	// PreviousNodeIDs are the IDs of the nodes with a sequence flow into
	// this gateway.
	PreviousNodeIDs []string `json:"previousNodeIds"`

	// NextNodeIDs are the IDs of the nodes this gateway has a sequence flow
	// into.
	NextNodeIDs []string `json:"nextNodeIds"`
}

// IsOpening returns true if the gateway splits flow, which is the case when
// it has exactly one predecessor.
func (n Node) IsOpening() bool {
	return len(n.PreviousNodeIDs) == 1
}

// IsClosing returns true if the gateway joins flow, which is the case when
// it has exactly one successor.
func (n Node) IsClosing() bool {
	return len(n.NextNodeIDs) == 1
}
