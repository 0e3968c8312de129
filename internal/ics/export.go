package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calrecon/internal/model"
)

const productID = "-//calrecon//calendar export//EN"

// icalStatus maps an event status onto the closest VEVENT STATUS value.
func icalStatus(s model.Status) string {
	switch s {
	case model.StatusCanceled:
		return "CANCELLED"
	case model.StatusCompleted, model.StatusInProgress:
		return "CONFIRMED"
	default:
		return "TENTATIVE"
	}
}

// Export renders events as a VCALENDAR named after the user. The event ID
// becomes the VEVENT UID; the merge history and exact status travel in
// X-CALRECON-* properties and the AI summary is appended to DESCRIPTION.
func Export(user model.User, events []model.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(user.Name)

	for _, e := range events {
		ve := cal.AddEvent(e.ID)
		ve.SetDtStampTime(now.UTC())
		ve.SetStartAt(e.StartTime.UTC())
		ve.SetEndAt(e.EndTime.UTC())
		ve.SetSummary(e.Title)
		if desc := exportDescription(e); desc != "" {
			ve.SetDescription(desc)
		}
		ve.SetProperty(ical.ComponentPropertyStatus, icalStatus(e.Status))
		ve.SetProperty(propStatus, string(e.Status))
		if len(e.MergedFrom) > 0 {
			ve.SetProperty(propMergedFrom, strings.Join(e.MergedFrom, ","))
		}
		if !e.CreatedAt.IsZero() {
			ve.SetCreatedTime(e.CreatedAt.UTC())
		}
		if !e.UpdatedAt.IsZero() {
			ve.SetModifiedAt(e.UpdatedAt.UTC())
		}
	}

	return cal.Serialize()
}

func exportDescription(e model.Event) string {
	switch {
	case e.AISummary == "":
		return e.Description
	case e.Description == "":
		return e.AISummary
	default:
		return e.Description + "\n\n" + e.AISummary
	}
}
