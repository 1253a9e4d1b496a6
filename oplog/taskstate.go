package oplog

import (
	"time"

	"github.com/dogmatiq/dodeca/logging"
)

// TaskState is the persisted analytics record of a single user task,
// carrying the operation log and the state derived from it.
type TaskState struct {
	// TaskID is the user task ID. It is the document key.
	TaskID string `json:"taskId"`

	// ProcessInstanceID is the instance the task occurred in, when known.
	ProcessInstanceID string `json:"processInstanceId,omitempty"`

	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`

	// TotalDurationInMillis is EndDate - StartDate. It is nil unless both
	// dates are known.
	TotalDurationInMillis *int64 `json:"totalDurationInMs,omitempty"`

	// IdleDurationInMillis is the time the task waited before it was
	// claimed.
	IdleDurationInMillis *int64 `json:"idleDurationInMs,omitempty"`

	// WorkDurationInMillis is the time the task was actively worked on.
	WorkDurationInMillis *int64 `json:"workDurationInMs,omitempty"`

	// Assignee is the user currently assigned to the task, derived from
	// the log.
	Assignee *string `json:"assignee,omitempty"`

	// CandidateGroups is the current candidate group set, derived from the
	// log.
	CandidateGroups []string `json:"candidateGroups,omitempty"`

	// Log is the canonical (deduplicated, timestamp ordered) operation
	// log.
	Log []Entry `json:"operationLog,omitempty"`
}

// Apply merges incoming log entries into the task's log and recomputes all
// derived fields from scratch.
func (s *TaskState) Apply(incoming []Entry, logger logging.Logger) {
	s.Log, s.Assignee, s.CandidateGroups = Project(s.Log, incoming, logger)
	s.recomputeDurations()
}

// recomputeDurations derives the total, idle and work durations.
//
// Without a claim the task is considered idle-free once it has ended, and
// all its duration is counted as work. With a claim, idle is the time from
// start to claim and work is the time from claim to end.
func (s *TaskState) recomputeDurations() {
	s.TotalDurationInMillis = nil
	s.IdleDurationInMillis = nil
	s.WorkDurationInMillis = nil

	if s.StartDate != nil && s.EndDate != nil {
		d := s.EndDate.Sub(*s.StartDate).Milliseconds()
		s.TotalDurationInMillis = &d
	}

	if s.EndDate != nil {
		zero := int64(0)
		s.IdleDurationInMillis = &zero
	}

	if s.TotalDurationInMillis != nil {
		d := *s.TotalDurationInMillis
		s.WorkDurationInMillis = &d
	}

	claim := claimTime(s.Log)
	if claim == nil {
		return
	}

	if s.StartDate != nil {
		d := claim.Sub(*s.StartDate).Milliseconds()
		s.IdleDurationInMillis = &d
	}

	if s.EndDate != nil {
		d := s.EndDate.Sub(*claim).Milliseconds()
		s.WorkDurationInMillis = &d

		if s.IdleDurationInMillis == nil {
			zero := int64(0)
			s.IdleDurationInMillis = &zero
		}
	}
}

// Absorb merges the descriptive fields of an incoming task record, with the
// same field precedence as flow node occurrences: a non-nil incoming date
// always wins.
func (s *TaskState) Absorb(in TaskState) {
	if s.ProcessInstanceID == "" {
		s.ProcessInstanceID = in.ProcessInstanceID
	}

	if in.StartDate != nil {
		t := *in.StartDate
		s.StartDate = &t
	}

	if in.EndDate != nil {
		t := *in.EndDate
		s.EndDate = &t
	}
}
