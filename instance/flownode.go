package instance

import "time"

// Flow node types with reconciliation-level meaning. Any other type is
// carried through untouched.
const (
	FlowNodeTypeStartEvent = "startEvent"
	FlowNodeTypeEndEvent   = "endEvent"
)

// FlowNode is one occurrence of a node (task, event or gateway) within a
// process instance's execution.
type FlowNode struct {
	// ID is the flow node instance ID. It is the stable identity of this
	// occurrence.
	ID string `json:"flowNodeInstanceId"`

	// FlowNodeID references the node in the process topology that this
	// occurrence belongs to.
	FlowNodeID string `json:"flowNodeId"`

	// FlowNodeType is the BPMN element type of the node, such as
	// "startEvent" or "userTask".
	FlowNodeType string `json:"flowNodeType"`

	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`

	// TotalDurationInMillis is EndDate - StartDate. It is nil unless both
	// dates are known.
	TotalDurationInMillis *int64 `json:"totalDurationInMs,omitempty"`

	// Canceled is true if the occurrence was canceled. Once true it is
	// never reset.
	Canceled bool `json:"canceled"`
}

// Absorb merges an incoming occurrence with the same instance ID into f.
//
// A non-nil incoming date always wins; a nil incoming date never clears an
// existing one. Canceled is monotonic. All other fields keep their first
// written value.
func (f *FlowNode) Absorb(in FlowNode) {
	if f.FlowNodeID == "" {
		f.FlowNodeID = in.FlowNodeID
	}

	if f.FlowNodeType == "" {
		f.FlowNodeType = in.FlowNodeType
	}

	if in.StartDate != nil {
		f.StartDate = cloneTime(in.StartDate)
	}

	if in.EndDate != nil {
		f.EndDate = cloneTime(in.EndDate)
	}

	if in.Canceled {
		f.Canceled = true
	}

	f.RecomputeDuration()
}

// RecomputeDuration derives TotalDurationInMillis from the start and end
// dates, clearing it if either is unknown.
func (f *FlowNode) RecomputeDuration() {
	if f.StartDate == nil || f.EndDate == nil {
		f.TotalDurationInMillis = nil
		return
	}

	d := f.EndDate.Sub(*f.StartDate).Milliseconds()
	f.TotalDurationInMillis = &d
}

// Clone returns a deep copy of the occurrence.
func (f FlowNode) Clone() FlowNode {
	c := f
	c.StartDate = cloneTime(f.StartDate)
	c.EndDate = cloneTime(f.EndDate)
	c.TotalDurationInMillis = cloneInt64(f.TotalDurationInMillis)
	return c
}
