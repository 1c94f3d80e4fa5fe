package store

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
)

// TxFn is a unit of work. Returning an error discards every write it made,
// audit entries included.
type TxFn func(ctx context.Context, tx Tx) error

// Tx exposes reads and writes inside one store transaction. Lookups of
// missing identities return an error wrapping errs.ErrNotFound; uniqueness
// violations wrap errs.ErrConflict.
type Tx interface {
	Identity(ctx context.Context, key string) (model.Identity, error)
	IdentityByRFID(ctx context.Context, rfid string) (model.Identity, error)
	// Rules returns the identity's rules ordered by Seq.
	Rules(ctx context.Context, key string) ([]model.AccessRule, error)

	CreateIdentity(ctx context.Context, id model.Identity) error
	// DeleteIdentity removes the identity and its rules.
	DeleteIdentity(ctx context.Context, key string) error
	SetMode(ctx context.Context, key string, mode model.Mode) error
	// SetRFID assigns rfid to the identity; an empty rfid clears it.
	SetRFID(ctx context.Context, key, rfid string) error
	// InsertRule stores rule after the identity's existing rules. The store
	// assigns Seq.
	InsertRule(ctx context.Context, rule model.AccessRule) error
	DeleteRule(ctx context.Context, key string, id uuid.UUID) error

	AppendAudit(ctx context.Context, e model.AuditEntry) error
}

// Store persists identities, their access rules and the audit log.
type Store interface {
	// Update runs fn in a read-write transaction and commits only if fn
	// returns nil.
	Update(ctx context.Context, fn TxFn) error
	// View runs fn in a transaction whose writes are never committed.
	View(ctx context.Context, fn TxFn) error

	ListIdentities(ctx context.Context) ([]model.Identity, error)
	AuditLog
}
