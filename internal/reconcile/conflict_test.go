package reconcile

import (
	"slices"
	"testing"

	"calrecon/internal/model"
)

func TestFindConflictsAllOverlapping(t *testing.T) {
	got := FindConflicts(fiveEvents())
	want := []string{"e1", "e2", "e3", "e4", "e5"}
	if !slices.Equal(ids(got), want) {
		t.Fatalf("conflicts = %v, want %v", ids(got), want)
	}
}

func TestFindConflictsSkipsIsolatedEvents(t *testing.T) {
	in := []model.Event{
		ev("late", "Late", "18:00", "19:00"),
		ev("a", "A", "09:00", "10:00"),
		ev("b", "B", "09:30", "10:30"),
		ev("gap", "Gap", "12:00", "13:00"),
		ev("c", "C", "14:00", "15:00"),
		ev("d", "D", "15:00", "16:00"),
	}
	got := FindConflicts(in)
	want := []string{"a", "b", "c", "d"}
	if !slices.Equal(ids(got), want) {
		t.Fatalf("conflicts = %v, want %v", ids(got), want)
	}
}

func TestFindConflictsNoOverlap(t *testing.T) {
	in := []model.Event{
		ev("a", "A", "09:00", "10:00"),
		ev("b", "B", "11:00", "12:00"),
	}
	if got := FindConflicts(in); len(got) != 0 {
		t.Fatalf("expected no conflicts, got %v", ids(got))
	}
}

func TestFindConflictsFewerThanTwo(t *testing.T) {
	one := []model.Event{ev("a", "A", "09:00", "10:00")}
	got := FindConflicts(one)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("single event should be returned unchanged, got %v", ids(got))
	}
	if got := FindConflicts(nil); len(got) != 0 {
		t.Fatalf("nil input should return empty, got %v", got)
	}
}

func TestFindConflictsDoesNotReorderInput(t *testing.T) {
	in := []model.Event{
		ev("b", "B", "09:30", "10:30"),
		ev("a", "A", "09:00", "10:00"),
	}
	got := FindConflicts(in)
	if !slices.Equal(ids(got), []string{"a", "b"}) {
		t.Fatalf("result should be in start order, got %v", ids(got))
	}
	if in[0].ID != "b" {
		t.Fatal("input slice was reordered")
	}
	if got[0].Title != "A" || len(got[0].MergedFrom) != 0 {
		t.Fatalf("events must not be merged: %+v", got[0])
	}
}

func TestFindConflictsComparesAdjacentPairsOnly(t *testing.T) {
	// y sits inside long but its sorted neighbor x ends before y starts,
	// so only the long/x pair is reported.
	in := []model.Event{
		ev("long", "Long", "09:00", "17:00"),
		ev("x", "X", "10:00", "10:30"),
		ev("y", "Y", "16:00", "16:30"),
	}
	got := FindConflicts(in)
	if !slices.Equal(ids(got), []string{"long", "x"}) {
		t.Fatalf("conflicts = %v", ids(got))
	}
}
