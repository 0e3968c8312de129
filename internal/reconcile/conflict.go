package reconcile

import (
	"slices"

	"calrecon/internal/model"
)

// FindConflicts returns the events that overlap at least one chronological
// neighbor, in start order. It uses the same inclusive overlap test as
// Merge and does not merge or modify anything.
//
// Only adjacent pairs are compared, so every member of an overlapping run
// is reported, but runs are not grouped.
func FindConflicts(events []model.Event) []model.Event {
	if len(events) < 2 {
		return events
	}

	sorted := slices.Clone(events)
	sortByStart(sorted)

	conflicting := make(map[string]struct{})
	for i := 1; i < len(sorted); i++ {
		prev, curr := sorted[i-1], sorted[i]
		if !prev.EndTime.Before(curr.StartTime) {
			conflicting[prev.ID] = struct{}{}
			conflicting[curr.ID] = struct{}{}
		}
	}

	out := make([]model.Event, 0, len(conflicting))
	for _, e := range sorted {
		if _, ok := conflicting[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}
