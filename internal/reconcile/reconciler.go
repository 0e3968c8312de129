package reconcile

import (
	"context"
	"errors"
	"time"

	appLog "calrecon/internal/log"
	"calrecon/internal/model"
)

// Loader returns a user and the user's complete current event set. A
// missing user is reported as a NOT_FOUND error.
type Loader interface {
	LoadUserEvents(ctx context.Context, userID string) (model.User, []model.Event, error)
}

// Sink persists reconciliation results.
type Sink interface {
	// ReplaceUserEvents makes events the user's entire event set.
	ReplaceUserEvents(ctx context.Context, userID string, events []model.Event) error
	// AppendAuditLog appends entries; it never rewrites existing ones.
	AppendAuditLog(ctx context.Context, entries []model.AuditLogEntry) error
}

// UserLister enumerates users for batch reconciliation.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Reconciler runs merge and conflict detection for one user at a time
// against a Loader and Sink. Concurrent Reconcile calls for the same user
// run one after another.
type Reconciler struct {
	loader   Loader
	sink     Sink
	enricher *Enricher
	now      func() time.Time
	locks    userLocks
}

// NewReconciler creates a Reconciler. enricher may be nil to skip
// summaries entirely.
func NewReconciler(loader Loader, sink Sink, enricher *Enricher) *Reconciler {
	return &Reconciler{
		loader:   loader,
		sink:     sink,
		enricher: enricher,
		now:      time.Now,
	}
}

// Reconcile merges the user's overlapping events, stores the merged set as
// the user's new event set, appends one audit entry per fold and returns
// the merged set. With fewer than two events the snapshot is returned and
// nothing is written.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) ([]model.Event, error) {
	appLog.Info("reconcile start", "user_id", userID)

	// A second run waiting here loads the first run's result, so every
	// fold is audited once.
	unlock, err := r.locks.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, snapshot, err := r.loader.LoadUserEvents(ctx, userID)
	if err != nil {
		appLog.Error("reconcile: load user failed", err, "user_id", userID)
		return nil, err
	}

	if len(snapshot) < 2 {
		appLog.Info("reconcile: not enough events to merge", "user_id", userID, "event_count", len(snapshot))
		return snapshot, nil
	}

	merged, folds := Merge(snapshot)

	if r.enricher != nil {
		r.enricher.Enrich(ctx, merged, snapshot)
	}

	if err := r.sink.ReplaceUserEvents(ctx, userID, merged); err != nil {
		appLog.Error("reconcile: persist events failed", err, "user_id", userID)
		return nil, err
	}

	if entries := AuditEntries(folds, userID, r.now().UTC()); len(entries) > 0 {
		if err := r.sink.AppendAuditLog(ctx, entries); err != nil {
			appLog.Error("reconcile: persist audit log failed", err, "user_id", userID)
			return nil, err
		}
		appLog.Info("reconcile: audit entries written", "user_id", userID, "count", len(entries))
	}

	appLog.Info("reconcile done",
		"user_id", userID,
		"events_before", len(snapshot),
		"events_after", len(merged),
		"folds", len(folds),
	)
	return merged, nil
}

// FindConflicts returns the user's events that overlap a neighbor.
func (r *Reconciler) FindConflicts(ctx context.Context, userID string) ([]model.Event, error) {
	_, events, err := r.loader.LoadUserEvents(ctx, userID)
	if err != nil {
		appLog.Error("conflicts: load user failed", err, "user_id", userID)
		return nil, err
	}

	conflicts := FindConflicts(events)
	appLog.Info("conflicts found", "user_id", userID, "conflicts", len(conflicts), "events", len(events))
	return conflicts, nil
}

// ReconcileAll reconciles every listed user in turn. A failure for one user
// is logged and does not stop the others; all failures are joined into the
// returned error. Cancellation of ctx stops the run between users.
func (r *Reconciler) ReconcileAll(ctx context.Context, users UserLister) (int, error) {
	ids, err := users.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := r.Reconcile(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}
