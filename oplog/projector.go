package oplog

import (
	"sort"
	"time"

	"github.com/dogmatiq/dodeca/logging"
)

// Project folds the union of an existing and an incoming operation log into
// its derived state.
//
// The union is deduplicated by entry ID with the first occurrence winning,
// then sorted ascending by timestamp. The returned log is that canonical
// form. assignee is the user the task is currently assigned to, or nil, and
// groups is the set of current candidate groups.
//
// Entries with an unknown kind or category are logged and skipped; they are
// not part of the returned log.
func Project(
	existing, incoming []Entry,
	logger logging.Logger,
) (final []Entry, assignee *string, groups []string) {
	seen := map[string]struct{}{}

	for _, e := range append(append([]Entry(nil), existing...), incoming...) {
		if _, ok := seen[e.ID]; ok {
			continue
		}

		if !isKnown(e) {
			logging.Log(
				logger,
				"skipping operation log entry %s with unrecognized kind '%s' / category '%s'",
				e.ID,
				e.Kind,
				e.Category,
			)
			continue
		}

		seen[e.ID] = struct{}{}
		final = append(final, e)
	}

	sort.SliceStable(
		final,
		func(i, j int) bool {
			if final[i].Timestamp.Equal(final[j].Timestamp) {
				return final[i].ID < final[j].ID
			}

			return final[i].Timestamp.Before(final[j].Timestamp)
		},
	)

	groupSet := map[string]struct{}{}
	var groupOrder []string

	for _, e := range final {
		switch e.Category {
		case Assignee:
			if e.Kind == Add {
				s := e.Subject
				assignee = &s
			} else {
				assignee = nil
			}

		case CandidateGroup:
			if e.Kind == Add {
				if _, ok := groupSet[e.Subject]; !ok {
					groupSet[e.Subject] = struct{}{}
					groupOrder = append(groupOrder, e.Subject)
				}
			} else {
				delete(groupSet, e.Subject)
			}
		}
	}

	for _, g := range groupOrder {
		if _, ok := groupSet[g]; ok {
			groups = append(groups, g)
		}
	}

	return final, assignee, groups
}

// claimTime returns the timestamp of the earliest claim entry in a log that
// is already in canonical order, or nil if the task was never claimed.
func claimTime(log []Entry) *time.Time {
	for _, e := range log {
		if e.isClaim() {
			t := e.Timestamp
			return &t
		}
	}

	return nil
}

func isKnown(e Entry) bool {
	switch e.Kind {
	case Add, Delete:
	default:
		return false
	}

	switch e.Category {
	case Assignee, CandidateGroup:
	default:
		return false
	}

	return true
}
