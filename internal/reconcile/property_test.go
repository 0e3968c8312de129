package reconcile

import (
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"calrecon/internal/model"
)

// buildEvents turns minute offsets and durations into events on one day.
func buildEvents(starts, durations []int) []model.Event {
	n := min(len(starts), len(durations))
	out := make([]model.Event, n)
	for i := 0; i < n; i++ {
		start := day.Add(time.Duration(starts[i]) * time.Minute)
		out[i] = model.Event{
			ID:        fmt.Sprintf("e%d", i),
			Title:     fmt.Sprintf("Event %d", i),
			Status:    model.StatusTodo,
			StartTime: start,
			EndTime:   start.Add(time.Duration(durations[i]) * time.Minute),
		}
	}
	return out
}

func mergeProperties(t *testing.T) *gopter.Properties {
	t.Helper()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	return gopter.NewProperties(parameters)
}

var (
	startsGen    = gen.SliceOf(gen.IntRange(0, 24*60))
	durationsGen = gen.SliceOf(gen.IntRange(0, 180))
)

func TestProperty_MergeLeavesNoOverlap(t *testing.T) {
	properties := mergeProperties(t)

	properties.Property("representatives are strictly separated", prop.ForAll(
		func(starts, durations []int) bool {
			merged, _ := Merge(buildEvents(starts, durations))
			for i := 1; i < len(merged); i++ {
				if !merged[i-1].EndTime.Before(merged[i].StartTime) {
					return false
				}
			}
			return true
		},
		startsGen, durationsGen,
	))

	properties.TestingRun(t)
}

func TestProperty_MergeIsIdempotent(t *testing.T) {
	properties := mergeProperties(t)

	properties.Property("merging merged output changes nothing", prop.ForAll(
		func(starts, durations []int) bool {
			first, _ := Merge(buildEvents(starts, durations))
			second, folds := Merge(first)
			if len(folds) != 0 || len(second) != len(first) {
				return false
			}
			for i := range first {
				if first[i].ID != second[i].ID || first[i].Title != second[i].Title ||
					!first[i].StartTime.Equal(second[i].StartTime) || !first[i].EndTime.Equal(second[i].EndTime) ||
					!slices.Equal(first[i].MergedFrom, second[i].MergedFrom) {
					return false
				}
			}
			return true
		},
		startsGen, durationsGen,
	))

	properties.TestingRun(t)
}

func TestProperty_MergeProvenance(t *testing.T) {
	properties := mergeProperties(t)

	properties.Property("every input id is accounted for exactly once", prop.ForAll(
		func(starts, durations []int) bool {
			in := buildEvents(starts, durations)
			merged, folds := Merge(in)

			if len(folds) != len(in)-len(merged) && len(in) >= 2 {
				return false
			}

			seen := make(map[string]int)
			for _, rep := range merged {
				if len(rep.MergedFrom) == 0 {
					seen[rep.ID]++
					continue
				}
				if rep.MergedFrom[0] != rep.ID {
					return false
				}
				for _, id := range rep.MergedFrom {
					seen[id]++
				}
			}
			if len(seen) != len(in) {
				return false
			}
			for _, n := range seen {
				if n != 1 {
					return false
				}
			}
			return true
		},
		startsGen, durationsGen,
	))

	properties.Property("folds match MergedFrom order", prop.ForAll(
		func(starts, durations []int) bool {
			merged, folds := Merge(buildEvents(starts, durations))
			var fromReps []model.Fold
			for _, rep := range merged {
				for _, id := range rep.MergedFrom[min(1, len(rep.MergedFrom)):] {
					fromReps = append(fromReps, model.Fold{OldEventID: id, NewEventID: rep.ID})
				}
			}
			return slices.Equal(fromReps, folds) || (len(fromReps) == 0 && len(folds) == 0)
		},
		startsGen, durationsGen,
	))

	properties.TestingRun(t)
}

func TestProperty_ConflictsIffFolds(t *testing.T) {
	properties := mergeProperties(t)

	properties.Property("conflicts exist exactly when merge folds", prop.ForAll(
		func(starts, durations []int) bool {
			in := buildEvents(starts, durations)
			_, folds := Merge(in)
			conflicts := FindConflicts(in)
			if len(in) < 2 {
				return len(folds) == 0 && len(conflicts) == len(in)
			}
			return (len(folds) == 0) == (len(conflicts) == 0)
		},
		startsGen, durationsGen,
	))

	properties.Property("one audit entry per fold", prop.ForAll(
		func(starts, durations []int) bool {
			_, folds := Merge(buildEvents(starts, durations))
			entries := AuditEntries(folds, "u1", day)
			if len(entries) != len(folds) {
				return false
			}
			for i, e := range entries {
				if e.OldEventID != folds[i].OldEventID || e.NewEventID != folds[i].NewEventID {
					return false
				}
			}
			return true
		},
		startsGen, durationsGen,
	))

	properties.TestingRun(t)
}
