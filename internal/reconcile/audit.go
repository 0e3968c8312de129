package reconcile

import (
	"time"

	"github.com/google/uuid"

	"calrecon/internal/model"
)

// AuditEntries maps merge folds to audit log entries for userID, one per
// fold in fold order. No folds means no entries.
func AuditEntries(folds []model.Fold, userID string, now time.Time) []model.AuditLogEntry {
	if len(folds) == 0 {
		return nil
	}
	entries := make([]model.AuditLogEntry, 0, len(folds))
	for _, f := range folds {
		entries = append(entries, model.AuditLogEntry{
			ID:         uuid.NewString(),
			OldEventID: f.OldEventID,
			NewEventID: f.NewEventID,
			Action:     model.AuditActionMerge,
			UserID:     userID,
			Timestamp:  now,
		})
	}
	return entries
}
