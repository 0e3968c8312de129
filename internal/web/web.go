package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"calrecon/internal/config"
	"calrecon/internal/ics"
	appLog "calrecon/internal/log"
	"calrecon/internal/model"
	"calrecon/internal/store"
)

const maxJSONBody = 4 << 20

// Engine is the reconciliation surface exposed over HTTP.
type Engine interface {
	Reconcile(ctx context.Context, userID string) ([]model.Event, error)
	FindConflicts(ctx context.Context, userID string) ([]model.Event, error)
}

// Server provides the HTTP API for users, events, reconciliation and
// calendar import/export.
type Server struct {
	cfg     *config.Config
	store   store.StoreInterface
	engine  Engine
	fetcher *ics.Fetcher
	mux     *http.ServeMux
	now     func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st store.StoreInterface, engine Engine) *Server {
	cacheDir := filepath.Join(os.TempDir(), "calrecon-ics")
	var fetchOpts []ics.FetcherOption
	if cfg != nil {
		if cfg.ICS.CacheDir != "" {
			cacheDir = cfg.ICS.CacheDir
		}
		if cfg.ICS.AllowPrivateFeeds {
			fetchOpts = append(fetchOpts, ics.WithPrivateNetworks())
		}
	}
	s := &Server{
		cfg:     cfg,
		store:   st,
		engine:  engine,
		fetcher: ics.NewFetcher(cacheDir, fetchOpts...),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the API wrapped in recovery, request-id and (when
// configured) basic auth middleware.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = basicAuthMiddleware(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password, h)
	}
	return requestIDMiddleware(recoveryMiddleware(h))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/users", s.handleCreateUser)
	s.mux.HandleFunc("GET /api/users", s.handleListUsers)
	s.mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	s.mux.HandleFunc("PATCH /api/users/{id}", s.handleUpdateUser)
	s.mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)

	s.mux.HandleFunc("POST /api/users/{id}/merge-all", s.handleMergeAll)
	s.mux.HandleFunc("GET /api/users/{id}/conflicts", s.handleConflicts)
	s.mux.HandleFunc("GET /api/users/{id}/audit", s.handleAudit)
	s.mux.HandleFunc("GET /api/users/{id}/calendar.ics", s.handleExportCalendar)
	s.mux.HandleFunc("POST /api/users/{id}/calendar.ics", s.handleImportCalendar)
	s.mux.HandleFunc("POST /api/users/{id}/calendar/subscribe", s.handleSubscribeCalendar)

	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("POST /api/events/batch", s.handleCreateBatch)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PATCH /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// decodeJSON reads a single JSON value from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: trailing data")
		return false
	}
	return true
}

// --- Users ---

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in store.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := s.store.CreateUser(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch store.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	u, err := s.store.UpdateUser(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Reconciliation ---

func (s *Server) handleMergeAll(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.Reconcile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.FindConflicts(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListAuditLog(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Events ---

// batchRequest is the body of POST /api/events/batch.
type batchRequest struct {
	Events []store.EventInput `json:"events"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in store.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := s.store.CreateEvent(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	events, err := s.store.CreateEvents(r.Context(), req.Events)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, events)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch store.EventPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	e, err := s.store.UpdateEvent(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
