// Package store manages all SQLite persistence for calrecon: users, events,
// the event/invitee link table and the append-only merge audit log.
//
// Timestamps are stored as fixed-width UTC text so that ORDER BY on the
// column is chronological.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "calrecon/internal/errors"
	appLog "calrecon/internal/log"
	"calrecon/internal/model"

	_ "modernc.org/sqlite"
)

// DefaultBatchLimit caps the number of events accepted by CreateEvents.
const DefaultBatchLimit = 500

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db         *sql.DB
	batchLimit int
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBatchLimit overrides DefaultBatchLimit. Non-positive values are ignored.
func WithBatchLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// WithClock sets the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens (or creates) the SQLite database and initializes the schema.
func New(path string, opts ...Option) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, batchLimit: DefaultBatchLimit, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// BatchLimit reports the maximum batch size accepted by CreateEvents.
func (s *Store) BatchLimit() int { return s.batchLimit }

// retryOnContention wraps retryOp with the default config. Every write goes
// through it.
func retryOnContention(fn func() error) error {
	return retryOp(defaultRetryConfig, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL,
		merged_from TEXT,
		ai_summary  TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);

	CREATE TABLE IF NOT EXISTS event_invitees (
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (event_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_event_invitees_user ON event_invitees(user_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id           TEXT PRIMARY KEY,
		old_event_id TEXT NOT NULL,
		new_event_id TEXT NOT NULL,
		action       TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		timestamp    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }

func readErr(op string, err error) error {
	return apperrors.NewPersistence(apperrors.CodeReadFailed, op, err)
}

func writeErr(op string, err error) error {
	return apperrors.NewPersistence(apperrors.CodeWriteFailed, op, err)
}

// inTx runs fn in a transaction, retrying the whole transaction on
// contention.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return retryOnContention(func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// UserInput is the payload for creating a user.
type UserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserPatch lists the user fields to change; nil fields are left alone.
type UserPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

func validateUser(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.NewValidation(apperrors.CodeInvalidUser, "name is required")
	}
	if !strings.Contains(email, "@") {
		return apperrors.NewValidation(apperrors.CodeInvalidUser, "a valid email is required")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser inserts a new user with a generated ID.
func (s *Store) CreateUser(ctx context.Context, in UserInput) (model.User, error) {
	u := model.User{ID: uuid.NewString(), Name: strings.TrimSpace(in.Name), Email: strings.TrimSpace(in.Email)}
	if err := validateUser(u.Name, u.Email); err != nil {
		return model.User{}, err
	}
	err := retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
			u.ID, u.Name, u.Email, formatTime(s.now()),
		)
		return err
	})
	if isUniqueViolation(err) {
		return model.User{}, apperrors.NewValidation(apperrors.CodeDuplicateEmail, "email "+u.Email+" is already registered")
	}
	if err != nil {
		return model.User{}, writeErr("create user", err)
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (model.User, error) {
	return getUser(ctx, s.db, id)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q queryer, id string) (model.User, error) {
	var u model.User
	err := q.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, apperrors.NewNotFound(apperrors.CodeUserNotFound, "user "+id+" not found")
	}
	if err != nil {
		return model.User{}, readErr("get user", err)
	}
	return u, nil
}

// ListUsers returns all users in creation order.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email FROM users ORDER BY created_at, rowid`)
	if err != nil {
		return nil, readErr("list users", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, readErr("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list users", err)
	}
	return users, nil
}

// ListUserIDs returns the IDs of all users in creation order.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

// UpdateUser applies patch to the user with the given ID.
func (s *Store) UpdateUser(ctx context.Context, id string, patch UserPatch) (model.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if patch.Name != nil {
		u.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		u.Email = strings.TrimSpace(*patch.Email)
	}
	if err := validateUser(u.Name, u.Email); err != nil {
		return model.User{}, err
	}
	err = retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE users SET name = ?, email = ? WHERE id = ?`, u.Name, u.Email, u.ID)
		return err
	})
	if isUniqueViolation(err) {
		return model.User{}, apperrors.NewValidation(apperrors.CodeDuplicateEmail, "email "+u.Email+" is already registered")
	}
	if err != nil {
		return model.User{}, writeErr("update user", err)
	}
	return u, nil
}

// DeleteUser removes a user and its invitee links. Events and audit
// entries are kept.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	var affected int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return writeErr("delete user", err)
	}
	if affected == 0 {
		return apperrors.NewNotFound(apperrors.CodeUserNotFound, "user "+id+" not found")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

// EventInput is the payload for creating an event. Status defaults to TODO.
type EventInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      model.Status `json:"status,omitempty"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
	InviteeIDs  []string     `json:"inviteeIds,omitempty"`
	MergedFrom  []string     `json:"mergedFrom,omitempty"`
}

// EventPatch lists the event fields to change; nil fields are left alone.
// A non-nil InviteeIDs replaces the event's invitee set.
type EventPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Status      *model.Status `json:"status,omitempty"`
	StartTime   *time.Time    `json:"startTime,omitempty"`
	EndTime     *time.Time    `json:"endTime,omitempty"`
	InviteeIDs  []string      `json:"inviteeIds,omitempty"`
}

func validateEvent(e model.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return apperrors.NewValidation(apperrors.CodeInvalidEvent, "title is required")
	}
	if !e.Status.Valid() {
		return apperrors.NewValidation(apperrors.CodeInvalidEvent, fmt.Sprintf("unknown status %q", e.Status))
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return apperrors.NewValidation(apperrors.CodeInvalidEvent, "startTime and endTime are required")
	}
	if e.EndTime.Before(e.StartTime) {
		return apperrors.NewValidation(apperrors.CodeInvalidEvent, "endTime must not be before startTime")
	}
	return nil
}

func (s *Store) newEvent(in EventInput) (model.Event, error) {
	now := s.now().UTC()
	e := model.Event{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      in.Status,
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		MergedFrom:  slices.Clone(in.MergedFrom),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if e.Status == "" {
		e.Status = model.StatusTodo
	}
	return e, validateEvent(e)
}

// CreateEvent inserts a single event. At least one invitee ID is required;
// IDs that do not name an existing user are dropped.
func (s *Store) CreateEvent(ctx context.Context, in EventInput) (model.Event, error) {
	if len(in.InviteeIDs) == 0 {
		return model.Event{}, apperrors.NewValidation(apperrors.CodeMissingInvitee, "at least one inviteeId is required to create an event")
	}
	e, err := s.newEvent(in)
	if err != nil {
		return model.Event{}, err
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		known, err := existingUserIDs(ctx, tx, in.InviteeIDs)
		if err != nil {
			return err
		}
		e.InviteeIDs = filterKnown(in.InviteeIDs, known)
		if err := upsertEvent(ctx, tx, e); err != nil {
			return err
		}
		return linkInvitees(ctx, tx, e.ID, e.InviteeIDs)
	})
	if err != nil {
		return model.Event{}, writeErr("create event", err)
	}
	return e, nil
}

// CreateEvents inserts a batch of 1..BatchLimit events in one transaction.
// Unknown invitee IDs are dropped; events may end up with no invitees.
func (s *Store) CreateEvents(ctx context.Context, in []EventInput) ([]model.Event, error) {
	if len(in) == 0 {
		return nil, apperrors.NewValidation(apperrors.CodeEmptyBatch, "no events provided")
	}
	if len(in) > s.batchLimit {
		return nil, apperrors.NewValidation(apperrors.CodeBatchTooLarge, fmt.Sprintf("maximum %d events per batch", s.batchLimit))
	}

	start := time.Now()
	events := make([]model.Event, len(in))
	var allInvitees []string
	for i, item := range in {
		e, err := s.newEvent(item)
		if err != nil {
			var ae *apperrors.Error
			if errors.As(err, &ae) {
				return nil, apperrors.NewValidation(ae.Code, fmt.Sprintf("event %d: %s", i, ae.Message))
			}
			return nil, err
		}
		events[i] = e
		allInvitees = append(allInvitees, item.InviteeIDs...)
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		known, err := existingUserIDs(ctx, tx, allInvitees)
		if err != nil {
			return err
		}
		for i := range events {
			events[i].InviteeIDs = filterKnown(in[i].InviteeIDs, known)
			if err := upsertEvent(ctx, tx, events[i]); err != nil {
				return err
			}
			if err := linkInvitees(ctx, tx, events[i].ID, events[i].InviteeIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, writeErr("create events", err)
	}

	appLog.Info("batch created events",
		"count", len(events),
		"limit", s.batchLimit,
		"duration", time.Since(start).String(),
	)
	return events, nil
}

// GetEvent retrieves an event by ID, including its invitee IDs.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	events, err := queryEvents(ctx, s.db, eventSelect+` WHERE e.id = ?`, id)
	if err != nil {
		return model.Event{}, readErr("get event", err)
	}
	if len(events) == 0 {
		return model.Event{}, apperrors.NewNotFound(apperrors.CodeEventNotFound, "event "+id+" not found")
	}
	return events[0], nil
}

// ListEvents returns every event ordered by start time.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := queryEvents(ctx, s.db, eventSelect+` ORDER BY e.start_time, e.rowid`)
	if err != nil {
		return nil, readErr("list events", err)
	}
	return events, nil
}

// UpdateEvent applies patch to the event with the given ID and bumps
// UpdatedAt.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch EventPatch) (model.Event, error) {
	e, err := s.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	if patch.Title != nil {
		e.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	if patch.StartTime != nil {
		e.StartTime = patch.StartTime.UTC()
	}
	if patch.EndTime != nil {
		e.EndTime = patch.EndTime.UTC()
	}
	if err := validateEvent(e); err != nil {
		return model.Event{}, err
	}
	e.UpdatedAt = s.now().UTC()

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertEvent(ctx, tx, e); err != nil {
			return err
		}
		if patch.InviteeIDs == nil {
			return nil
		}
		known, err := existingUserIDs(ctx, tx, patch.InviteeIDs)
		if err != nil {
			return err
		}
		e.InviteeIDs = filterKnown(patch.InviteeIDs, known)
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_invitees WHERE event_id = ?`, e.ID); err != nil {
			return err
		}
		return linkInvitees(ctx, tx, e.ID, e.InviteeIDs)
	})
	if err != nil {
		return model.Event{}, writeErr("update event", err)
	}
	return e, nil
}

// DeleteEvent removes an event and its invitee links.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	var affected int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return writeErr("delete event", err)
	}
	if affected == 0 {
		return apperrors.NewNotFound(apperrors.CodeEventNotFound, "event "+id+" not found")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

// LoadUserEvents returns the user and every event the user is invited to,
// ordered by start time and then insertion order.
func (s *Store) LoadUserEvents(ctx context.Context, userID string) (model.User, []model.Event, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, nil, err
	}
	events, err := queryEvents(ctx, s.db,
		eventSelect+` JOIN event_invitees ui ON ui.event_id = e.id
		WHERE ui.user_id = ? ORDER BY e.start_time, e.rowid`, userID)
	if err != nil {
		return model.User{}, nil, readErr("load user events", err)
	}
	return u, events, nil
}

// ReplaceUserEvents makes events the user's complete event set in one
// transaction. Each event is upserted by ID; links from the user to events
// not in the set are removed, leaving those rows intact for other invitees.
func (s *Store) ReplaceUserEvents(ctx context.Context, userID string, events []model.Event) error {
	now := s.now().UTC()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getUser(ctx, tx, userID); err != nil {
			return err
		}
		for _, e := range events {
			e.UpdatedAt = now
			if e.CreatedAt.IsZero() {
				e.CreatedAt = now
			}
			if err := upsertEvent(ctx, tx, e); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM event_invitees WHERE user_id = ?`, userID); err != nil {
			return err
		}
		for _, e := range events {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO event_invitees (event_id, user_id) VALUES (?, ?)`, e.ID, userID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if err != nil {
		return writeErr("replace user events", err)
	}
	return nil
}

// AppendAuditLog inserts entries in one transaction.
func (s *Store) AppendAuditLog(ctx context.Context, entries []model.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO audit_log (id, old_event_id, new_event_id, action, user_id, timestamp)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				a.ID, a.OldEventID, a.NewEventID, string(a.Action), a.UserID, formatTime(a.Timestamp),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return writeErr("append audit log", err)
	}
	return nil
}

// ListAuditLog returns the audit entries recorded for a user, oldest first.
func (s *Store) ListAuditLog(ctx context.Context, userID string) ([]model.AuditLogEntry, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, old_event_id, new_event_id, action, user_id, timestamp
		 FROM audit_log WHERE user_id = ? ORDER BY timestamp, rowid`, userID)
	if err != nil {
		return nil, readErr("list audit log", err)
	}
	defer rows.Close()

	entries := []model.AuditLogEntry{}
	for rows.Next() {
		var a model.AuditLogEntry
		var action, ts string
		if err := rows.Scan(&a.ID, &a.OldEventID, &a.NewEventID, &action, &a.UserID, &ts); err != nil {
			return nil, readErr("scan audit entry", err)
		}
		a.Action = model.AuditAction(action)
		if a.Timestamp, err = parseTime(ts); err != nil {
			return nil, readErr("parse audit timestamp", err)
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list audit log", err)
	}
	return entries, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const eventSelect = `SELECT e.id, e.title, e.description, e.status, e.start_time, e.end_time,
	e.merged_from, e.ai_summary, e.created_at, e.updated_at,
	(SELECT group_concat(i.user_id) FROM event_invitees i WHERE i.event_id = e.id)
	FROM events e`

func queryEvents(ctx context.Context, q queryer, query string, args ...any) ([]model.Event, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (model.Event, error) {
	var (
		e                    model.Event
		status, start, end   string
		created, updated     string
		mergedFrom, invitees sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.Title, &e.Description, &status, &start, &end,
		&mergedFrom, &e.AISummary, &created, &updated, &invitees); err != nil {
		return model.Event{}, err
	}
	e.Status = model.Status(status)

	var err error
	if e.StartTime, err = parseTime(start); err != nil {
		return model.Event{}, fmt.Errorf("event %s start_time: %w", e.ID, err)
	}
	if e.EndTime, err = parseTime(end); err != nil {
		return model.Event{}, fmt.Errorf("event %s end_time: %w", e.ID, err)
	}
	if e.CreatedAt, err = parseTime(created); err != nil {
		return model.Event{}, fmt.Errorf("event %s created_at: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return model.Event{}, fmt.Errorf("event %s updated_at: %w", e.ID, err)
	}
	if mergedFrom.Valid && mergedFrom.String != "" {
		if err := json.Unmarshal([]byte(mergedFrom.String), &e.MergedFrom); err != nil {
			return model.Event{}, fmt.Errorf("event %s merged_from: %w", e.ID, err)
		}
	}
	if invitees.Valid && invitees.String != "" {
		e.InviteeIDs = strings.Split(invitees.String, ",")
		slices.Sort(e.InviteeIDs)
	}
	return e, nil
}

func upsertEvent(ctx context.Context, tx *sql.Tx, e model.Event) error {
	var mergedFrom any
	if len(e.MergedFrom) > 0 {
		b, err := json.Marshal(e.MergedFrom)
		if err != nil {
			return err
		}
		mergedFrom = string(b)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, title, description, status, start_time, end_time, merged_from, ai_summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			merged_from = excluded.merged_from,
			ai_summary = excluded.ai_summary,
			updated_at = excluded.updated_at`,
		e.ID, e.Title, e.Description, string(e.Status), formatTime(e.StartTime), formatTime(e.EndTime),
		mergedFrom, e.AISummary, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	return err
}

func linkInvitees(ctx context.Context, tx *sql.Tx, eventID string, userIDs []string) error {
	for _, uid := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO event_invitees (event_id, user_id) VALUES (?, ?)`, eventID, uid,
		); err != nil {
			return err
		}
	}
	return nil
}

// existingUserIDs returns the subset of ids that name existing users.
func existingUserIDs(ctx context.Context, q queryer, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(ids) == 0 {
		return known, nil
	}
	unique := slices.Compact(slices.Sorted(slices.Values(ids)))
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unique)), ",")
	args := make([]any, len(unique))
	for i, id := range unique {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `SELECT id FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = true
	}
	return known, rows.Err()
}

// filterKnown keeps the first occurrence of each id in known, sorted.
func filterKnown(ids []string, known map[string]bool) []string {
	var out []string
	for _, id := range ids {
		if known[id] && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
