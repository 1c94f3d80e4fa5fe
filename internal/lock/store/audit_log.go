package store

import (
	"context"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
)

// AuditLog reads the append-only audit trail. Entries are appended through
// Tx.AppendAudit so they commit together with the change they describe.
type AuditLog interface {
	// AuditEntries returns matching entries oldest first. A positive
	// f.Limit keeps the most recent f.Limit matches.
	AuditEntries(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error)
}
