package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// IdentityRegistry manages identities and their RFID assignments.
type IdentityRegistry struct {
	store store.Store
	locks *KeyLock
	opts  options
}

func NewIdentityRegistry(st store.Store, locks *KeyLock, opts ...Option) *IdentityRegistry {
	return &IdentityRegistry{store: st, locks: locks, opts: buildOptions(opts)}
}

// Create registers key in ModeRules with no RFID id.
func (r *IdentityRegistry) Create(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return r.mutate(ctx, "Create", key, model.MethodCreateUser, "", func(ctx context.Context, tx store.Tx) error {
		return tx.CreateIdentity(ctx, model.Identity{
			Key:       key,
			Mode:      model.ModeRules,
			CreatedAt: r.opts.now().UTC(),
		})
	})
}

// Delete removes the identity together with its rules.
func (r *IdentityRegistry) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return r.mutate(ctx, "Delete", key, model.MethodRemoveUser, "", func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteIdentity(ctx, key)
	})
}

// AssignRFID binds rfid to key, replacing any id the identity had. It fails
// with errs.ErrConflict when another identity owns rfid.
func (r *IdentityRegistry) AssignRFID(ctx context.Context, key, rfid string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	rfid = strings.TrimSpace(rfid)
	if rfid == "" {
		return fmt.Errorf("%w: rfid_id is required", errs.ErrValidation)
	}
	hash := HashRFID(rfid)
	detail := "rfid_hash=" + hex.EncodeToString(hash[:8])
	return r.mutate(ctx, "AssignRFID", key, model.MethodAssignRFID, detail, func(ctx context.Context, tx store.Tx) error {
		return tx.SetRFID(ctx, key, rfid)
	})
}

// RemoveRFID clears the identity's RFID id. It returns errs.ErrNotFound if
// none is assigned.
func (r *IdentityRegistry) RemoveRFID(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	return r.mutate(ctx, "RemoveRFID", key, model.MethodRemoveRFID, "", func(ctx context.Context, tx store.Tx) error {
		id, err := tx.Identity(ctx, key)
		if err != nil {
			return err
		}
		if id.RFID == "" {
			return fmt.Errorf("identity %q has no rfid id: %w", key, errs.ErrNotFound)
		}
		return tx.SetRFID(ctx, key, "")
	})
}

func (r *IdentityRegistry) Get(ctx context.Context, key string) (model.Identity, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return model.Identity{}, err
	}
	var id model.Identity
	err = r.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = tx.Identity(ctx, key)
		return err
	})
	if err != nil {
		return model.Identity{}, storageErr("Get", err)
	}
	return id, nil
}

// List returns all identities ordered by key.
func (r *IdentityRegistry) List(ctx context.Context) ([]model.Identity, error) {
	ids, err := r.store.ListIdentities(ctx)
	if err != nil {
		return nil, storageErr("List", err)
	}
	return ids, nil
}

// mutate runs fn and its ADMIN_CHANGE audit entry in one transaction while
// holding the identity's lock.
func (r *IdentityRegistry) mutate(ctx context.Context, op, key string, method model.Method, detail string, fn store.TxFn) error {
	unlock := r.locks.Lock(key)
	defer unlock()

	now := r.opts.now().UTC()
	err := r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, model.AuditEntry{
			Timestamp:   now,
			IdentityKey: key,
			Method:      method,
			Category:    model.CategoryAdminChange,
			Detail:      detail,
		})
	})
	if err != nil {
		return storageErr(op, err)
	}

	r.opts.logger.Info("identity changed",
		zap.String("identity", key),
		zap.String("method", string(method)),
	)
	return nil
}
