package service

import (
	"context"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// AuditTrail reads the audit log. Entries are written only by the other
// services, inside the transactions they record.
type AuditTrail struct {
	log  store.AuditLog
	opts options
}

func NewAuditTrail(log store.AuditLog, opts ...Option) *AuditTrail {
	return &AuditTrail{log: log, opts: buildOptions(opts)}
}

// List returns matching entries oldest first, timestamps in the configured
// location.
func (a *AuditTrail) List(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	entries, err := a.log.AuditEntries(ctx, f)
	if err != nil {
		return nil, storageErr("AuditTrail", err)
	}
	for i := range entries {
		entries[i].Timestamp = entries[i].Timestamp.In(a.opts.loc)
	}
	return entries, nil
}
