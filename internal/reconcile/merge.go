// Package reconcile implements interval reconciliation for a user's events:
// the sweep merger, the conflict detector, the audit trail derived from
// merge folds, summary enrichment of merged events and the orchestrator
// that ties them to storage.
package reconcile

import (
	"slices"

	"calrecon/internal/model"
)

// Merge collapses every chain of overlapping events into one representative.
//
// The input is never mutated: events are cloned, stable-sorted by start
// time and folded on the clones. Two events overlap when the running end of
// the chain is at or after the next start, so touching endpoints merge.
// Each absorbed event yields one Fold in the order it was absorbed.
//
// Policy notes: the earliest start survives, the latest end wins, titles
// are joined with "&", and the status of the last folded event overwrites
// the representative's status.
func Merge(events []model.Event) ([]model.Event, []model.Fold) {
	sorted := sortedClones(events)
	if len(sorted) < 2 {
		return sorted, nil
	}

	merged := make([]model.Event, 0, len(sorted))
	var folds []model.Fold

	current := sorted[0]
	for _, e := range sorted[1:] {
		if current.EndTime.Before(e.StartTime) {
			merged = append(merged, current)
			current = e
			continue
		}

		if len(current.MergedFrom) == 0 {
			current.MergedFrom = []string{current.ID}
		}
		current.MergedFrom = append(current.MergedFrom, e.ID)
		if e.EndTime.After(current.EndTime) {
			current.EndTime = e.EndTime
		}
		current.Title += "&" + e.Title
		current.Status = e.Status

		folds = append(folds, model.Fold{OldEventID: e.ID, NewEventID: current.ID})
	}
	merged = append(merged, current)

	return merged, folds
}

func sortedClones(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	sortByStart(out)
	return out
}

// sortByStart orders events by start time; equal starts keep input order.
func sortByStart(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return a.StartTime.Compare(b.StartTime)
	})
}
