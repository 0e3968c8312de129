package model

import (
	"slices"
	"time"
)

// Status is the progress state of an event.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCanceled   Status = "CANCELED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// Event is a calendar entry owned by one or more users (its invitees).
//
// MergedFrom is empty until the event survives a merge; afterwards it lists
// the event's own pre-merge ID followed by every absorbed ID in fold order,
// and Title is the "&"-joined titles in that same order.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	MergedFrom  []string  `json:"mergedFrom,omitempty"`
	AISummary   string    `json:"aiSummary,omitempty"`
	InviteeIDs  []string  `json:"inviteeIds,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a copy of e that shares no slices with e.
func (e Event) Clone() Event {
	c := e
	c.MergedFrom = slices.Clone(e.MergedFrom)
	c.InviteeIDs = slices.Clone(e.InviteeIDs)
	return c
}

// User is an account that can be invited to events.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuditAction names what happened to an event.
type AuditAction string

const (
	AuditActionMerge AuditAction = "MERGE"
)

// AuditLogEntry records that OldEventID was folded into NewEventID on
// behalf of UserID. Entries are append-only.
type AuditLogEntry struct {
	ID         string      `json:"id"`
	OldEventID string      `json:"oldEventId"`
	NewEventID string      `json:"newEventId"`
	Action     AuditAction `json:"action"`
	UserID     string      `json:"userId"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Fold is a single absorption decision made by the sweep merger.
type Fold struct {
	OldEventID string
	NewEventID string
}
