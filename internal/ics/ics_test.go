package ics

import (
	"slices"
	"strings"
	"testing"
	"time"

	apperrors "calrecon/internal/errors"
	"calrecon/internal/model"
)

func calendar(lines ...string) []byte {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR", "")
	return []byte(strings.Join(all, "\r\n"))
}

var sample = calendar(
	"BEGIN:VEVENT",
	"UID:single-1",
	"DTSTAMP:20250301T000000Z",
	"DTSTART:20250314T090000Z",
	"DTEND:20250314T100000Z",
	"SUMMARY:Standup",
	"STATUS:CANCELLED",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"DTSTAMP:20250301T000000Z",
	"DTSTART:20250303T140000Z",
	"DTEND:20250303T150000Z",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20250310T140000Z",
	"SUMMARY:Sync",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:weekly-1",
	"DTSTAMP:20250301T000000Z",
	"RECURRENCE-ID:20250317T140000Z",
	"DTSTART:20250317T160000Z",
	"DTEND:20250317T170000Z",
	"SUMMARY:Sync (moved)",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"DTSTAMP:20250301T000000Z",
	"DTSTART:20250314T090000Z",
	"SUMMARY:No UID",
	"END:VEVENT",
)

func utc(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseICS(t *testing.T) {
	events, err := ParseICS(sample)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (event without UID skipped)", len(events))
	}

	single := events[0]
	if single.UID != "single-1" || single.Summary != "Standup" {
		t.Fatalf("single = %+v", single)
	}
	if single.Status != model.StatusCanceled {
		t.Fatalf("status = %q, want CANCELED", single.Status)
	}
	if !single.Start.Equal(utc("2025-03-14 09:00")) || !single.End.Equal(utc("2025-03-14 10:00")) {
		t.Fatalf("times = %s - %s", single.Start, single.End)
	}

	weekly := events[1]
	if weekly.RawRRule != "FREQ=WEEKLY;COUNT=4" || len(weekly.ExDates) != 1 {
		t.Fatalf("weekly = %+v", weekly)
	}
	if weekly.Status != model.StatusTodo {
		t.Fatalf("default status = %q", weekly.Status)
	}

	override := events[2]
	if !override.IsOverride || override.Recurrence == nil || !override.Recurrence.Equal(utc("2025-03-17 14:00")) {
		t.Fatalf("override = %+v", override)
	}
}

func TestParseICS_Empty(t *testing.T) {
	_, err := ParseICS([]byte("  \n"))
	if apperrors.GetCode(err) != apperrors.CodeInvalidCalendar {
		t.Fatalf("expected INVALID_CALENDAR, got %v", err)
	}
}

func TestParseICS_AllDayDefaultsToOneDay(t *testing.T) {
	events, err := ParseICS(calendar(
		"BEGIN:VEVENT",
		"UID:holiday",
		"DTSTAMP:20250301T000000Z",
		"DTSTART;VALUE=DATE:20250317",
		"SUMMARY:Holiday",
		"END:VEVENT",
	))
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(events) != 1 || !events[0].AllDay {
		t.Fatalf("events = %+v", events)
	}
	if got := events[0].End.Sub(events[0].Start); got != 24*time.Hour {
		t.Fatalf("all-day duration = %s", got)
	}
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS(sample)
	if err != nil {
		t.Fatal(err)
	}
	res, err := ExpandOccurrences(events, HorizonConfig(utc("2025-03-14 00:00"), 90, 0))
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}

	type span struct {
		title      string
		start, end time.Time
	}
	var got []span
	for _, o := range res.Occurrences {
		got = append(got, span{o.Summary, o.Start, o.End})
	}
	want := []span{
		{"Standup", utc("2025-03-14 09:00"), utc("2025-03-14 10:00")},
		{"Sync", utc("2025-03-03 14:00"), utc("2025-03-03 15:00")},
		{"Sync (moved)", utc("2025-03-17 16:00"), utc("2025-03-17 17:00")},
		{"Sync", utc("2025-03-24 14:00"), utc("2025-03-24 15:00")},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i].title != want[i].title || !got[i].start.Equal(want[i].start) || !got[i].end.Equal(want[i].end) {
			t.Errorf("occurrence %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if len(res.TruncatedEvents) != 0 {
		t.Fatalf("unexpected truncation %v", res.TruncatedEvents)
	}
}

func TestExpandOccurrences_Cap(t *testing.T) {
	events := []ParsedEvent{{
		UID:      "daily",
		Summary:  "Daily",
		Start:    utc("2025-03-01 08:00"),
		End:      utc("2025-03-01 08:30"),
		RawRRule: "FREQ=DAILY",
	}}
	res, err := ExpandOccurrences(events, ExpandConfig{
		RangeStart:             utc("2025-03-01 00:00"),
		RangeEnd:               utc("2025-12-31 00:00"),
		MaxOccurrencesPerEvent: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Occurrences) != 5 {
		t.Fatalf("got %d occurrences, want 5", len(res.Occurrences))
	}
	if !slices.Equal(res.TruncatedEvents, []string{"daily"}) {
		t.Fatalf("TruncatedEvents = %v", res.TruncatedEvents)
	}
}

func TestExpandOccurrences_BadRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: utc("2025-03-02 00:00"), RangeEnd: utc("2025-03-01 00:00")})
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestExportRoundTrip(t *testing.T) {
	user := model.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}
	events := []model.Event{
		{
			ID:         "e1",
			Title:      "Event 1&Event 2",
			Status:     model.StatusInProgress,
			StartTime:  utc("2025-03-14 14:00"),
			EndTime:    utc("2025-03-14 16:00"),
			MergedFrom: []string{"e1", "e2"},
			AISummary:  "Merged 2 overlapping events: Event 1 + Event 2.",
		},
		{
			ID:        "e4",
			Title:     "Event 4",
			Status:    model.StatusCanceled,
			StartTime: utc("2025-03-14 18:00"),
			EndTime:   utc("2025-03-14 19:00"),
		},
	}

	out := Export(user, events, utc("2025-03-14 00:00"))
	if !strings.Contains(out, "BEGIN:VCALENDAR") || !strings.Contains(out, "X-CALRECON-MERGED-FROM:e1,e2") {
		t.Fatalf("unexpected export:\n%s", out)
	}

	parsed, err := ParseICS([]byte(out))
	if err != nil {
		t.Fatalf("ParseICS(export): %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d events", len(parsed))
	}
	first := parsed[0]
	if first.UID != "e1" || first.Summary != "Event 1&Event 2" || first.Status != model.StatusInProgress {
		t.Fatalf("first = %+v", first)
	}
	if !first.Start.Equal(events[0].StartTime) || !first.End.Equal(events[0].EndTime) {
		t.Fatalf("times = %s - %s", first.Start, first.End)
	}
	if first.Description != events[0].AISummary {
		t.Fatalf("description = %q", first.Description)
	}
	if parsed[1].Status != model.StatusCanceled {
		t.Fatalf("status = %q", parsed[1].Status)
	}
}
