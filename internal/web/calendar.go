package web

import (
	"io"
	"net/http"
	"slices"
	"strings"

	apperrors "calrecon/internal/errors"
	"calrecon/internal/ics"
	appLog "calrecon/internal/log"
	"calrecon/internal/model"
	"calrecon/internal/store"
)

const maxICSBody = 10 << 20

// importResponse is the JSON response shape for ICS import.
type importResponse struct {
	Imported      int           `json:"imported"`
	TruncatedUIDs []string      `json:"truncated_uids,omitempty"`
	Events        []model.Event `json:"events"`
}

// handleExportCalendar serves the user's events as an iCalendar document.
func (s *Server) handleExportCalendar(w http.ResponseWriter, r *http.Request) {
	user, events, err := s.store.LoadUserEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+user.ID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ics.Export(user, events, s.now()))
}

// subscribeRequest is the body of POST /api/users/{id}/calendar/subscribe.
type subscribeRequest struct {
	URL string `json:"url"`
}

// handleImportCalendar imports an iCalendar document sent as the body.
func (s *Server) handleImportCalendar(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		writeAppError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxICSBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read calendar body: "+err.Error())
		return
	}
	s.importCalendar(w, r, userID, body, "upload")
}

// handleSubscribeCalendar fetches a published feed and imports it. A feed
// that cannot be reached is imported from its last cached copy when one
// exists.
func (s *Server) handleSubscribeCalendar(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := s.store.GetUser(r.Context(), userID); err != nil {
		writeAppError(w, r, err)
		return
	}

	res, err := s.fetcher.Fetch(r.Context(), req.URL)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	source := "feed"
	if res.FromCache {
		source = "feed-cache"
	}
	s.importCalendar(w, r, userID, res.Body, source)
}

// importCalendar parses body, expands recurrences within the configured
// horizon and stores every occurrence with the user as its invitee.
// Occurrences are written in batches of at most the batch limit.
func (s *Server) importCalendar(w http.ResponseWriter, r *http.Request, userID string, body []byte, source string) {
	ctx := r.Context()
	parsed, err := ics.ParseICS(body)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	horizonDays, maxOcc, batchLimit := ics.DefaultHorizonDays, ics.DefaultMaxOccurrencesPerEvent, store.DefaultBatchLimit
	if s.cfg != nil {
		horizonDays, maxOcc, batchLimit = s.cfg.ICS.HorizonDays, s.cfg.ICS.MaxOccurrencesPerEvent, s.cfg.BatchLimit
	}
	if batchLimit <= 0 {
		batchLimit = store.DefaultBatchLimit
	}
	expanded, err := ics.ExpandOccurrences(parsed, ics.HorizonConfig(s.now(), horizonDays, maxOcc))
	if err != nil {
		writeAppError(w, r, apperrors.NewInternal("expand calendar", err))
		return
	}

	inputs := make([]store.EventInput, 0, len(expanded.Occurrences))
	for _, o := range expanded.Occurrences {
		inputs = append(inputs, occurrenceInput(o, userID))
	}

	resp := importResponse{TruncatedUIDs: expanded.TruncatedEvents, Events: []model.Event{}}
	for chunk := range slices.Chunk(inputs, batchLimit) {
		created, err := s.store.CreateEvents(ctx, chunk)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		resp.Events = append(resp.Events, created...)
	}
	resp.Imported = len(resp.Events)

	appLog.Info("ics import completed",
		"user_id", userID,
		"source", source,
		"vevents", len(parsed),
		"imported", resp.Imported,
		"truncated", len(resp.TruncatedUIDs),
		"request_id", requestID(ctx),
	)
	writeJSON(w, http.StatusCreated, resp)
}

func occurrenceInput(o ics.Occurrence, userID string) store.EventInput {
	title := strings.TrimSpace(o.Summary)
	if title == "" {
		title = "Untitled event"
	}
	return store.EventInput{
		Title:       title,
		Description: o.Description,
		Status:      o.Status,
		StartTime:   o.Start,
		EndTime:     o.End,
		InviteeIDs:  []string{userID},
	}
}
