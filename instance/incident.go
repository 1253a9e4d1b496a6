package instance

import "time"

// IncidentStatus describes the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
	IncidentDeleted  IncidentStatus = "deleted"
)

// Incident is a failure that occurred during execution of an instance.
type Incident struct {
	// ID is the incident's identity, used for deduplication on merge.
	ID string `json:"id"`

	// ActivityID references the node the incident occurred at. Producers
	// may deliver it as a flow node *instance* ID; the reconciler remaps it
	// to the topology node ID once the occurrence is known.
	ActivityID string `json:"activityId"`

	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`

	// Status is terminal once it leaves "open": a resolved or deleted
	// incident never becomes open again.
	Status IncidentStatus `json:"incidentStatus"`

	CreateTime *time.Time `json:"createTime,omitempty"`
	EndTime    *time.Time `json:"endTime,omitempty"`

	// DurationInMillis is EndTime - CreateTime. It is nil unless both
	// times are known.
	DurationInMillis *int64 `json:"durationInMs,omitempty"`
}

// Absorb merges an incoming incident with the same ID into i.
//
// The existing record wins except that an open status may progress to a
// terminal one, and unknown times may be filled in.
func (i *Incident) Absorb(in Incident) {
	if i.Status == IncidentOpen && in.Status != "" {
		i.Status = in.Status
	}

	if i.ActivityID == "" {
		i.ActivityID = in.ActivityID
	}

	if i.ErrorType == "" {
		i.ErrorType = in.ErrorType
	}

	if i.ErrorMessage == "" {
		i.ErrorMessage = in.ErrorMessage
	}

	if i.CreateTime == nil {
		i.CreateTime = cloneTime(in.CreateTime)
	}

	if i.EndTime == nil {
		i.EndTime = cloneTime(in.EndTime)
	}

	i.RecomputeDuration()
}

// RecomputeDuration derives DurationInMillis from the create and end times,
// clearing it if either is unknown.
func (i *Incident) RecomputeDuration() {
	if i.CreateTime == nil || i.EndTime == nil {
		i.DurationInMillis = nil
		return
	}

	d := i.EndTime.Sub(*i.CreateTime).Milliseconds()
	i.DurationInMillis = &d
}

// Clone returns a deep copy of the incident.
func (i Incident) Clone() Incident {
	c := i
	c.CreateTime = cloneTime(i.CreateTime)
	c.EndTime = cloneTime(i.EndTime)
	c.DurationInMillis = cloneInt64(i.DurationInMillis)
	return c
}
