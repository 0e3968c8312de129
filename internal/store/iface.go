package store

import (
	"context"

	"calrecon/internal/model"
	"calrecon/internal/reconcile"
)

// StoreInterface is the full set of store operations used by the HTTP
// layer and the scheduler. *Store implements it; tests may substitute a
// fake.
type StoreInterface interface {
	Close() error

	// --- Users ---

	CreateUser(ctx context.Context, in UserInput) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (model.User, error)
	DeleteUser(ctx context.Context, id string) error
	ListUserIDs(ctx context.Context) ([]string, error)

	// --- Events ---

	CreateEvent(ctx context.Context, in EventInput) (model.Event, error)
	CreateEvents(ctx context.Context, in []EventInput) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error

	// --- Reconciliation ---

	LoadUserEvents(ctx context.Context, userID string) (model.User, []model.Event, error)
	ReplaceUserEvents(ctx context.Context, userID string, events []model.Event) error
	AppendAuditLog(ctx context.Context, entries []model.AuditLogEntry) error
	ListAuditLog(ctx context.Context, userID string) ([]model.AuditLogEntry, error)
}

var (
	_ StoreInterface       = (*Store)(nil)
	_ reconcile.Loader     = (*Store)(nil)
	_ reconcile.Sink       = (*Store)(nil)
	_ reconcile.UserLister = (*Store)(nil)
)
