package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// Store implements store.Store on a pgx pool. Update transactions take row
// locks on every identity they read so concurrent writers to the same
// identity serialize in the database as well as in the service layer.
type Store struct{ db *DB }

var _ store.Store = (*Store)(nil)

func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	return s.run(ctx, pgx.TxOptions{}, true, fn)
}

func (s *Store) View(ctx context.Context, fn store.TxFn) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, false, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, lock bool, fn store.TxFn) error {
	tx, err := s.db.Pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(ctx, &pgTx{tx: tx, lock: lock}); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if !lock {
		return tx.Rollback(context.WithoutCancel(ctx))
	}
	if err := ctx.Err(); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	const q = `
SELECT identity_key, access_mode, rfid_id, created_at
FROM identities
ORDER BY identity_key`
	rows, err := s.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListIdentities query: %w", err)
	}
	defer rows.Close()

	var out []model.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("ListIdentities scan: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) AuditEntries(ctx context.Context, f model.AuditFilter) ([]model.AuditEntry, error) {
	q, args := auditQuery(f)
	rows, err := s.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("AuditEntries query: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e        model.AuditEntry
			method   string
			category string
		)
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.IdentityKey, &method, &category, &e.RFIDHash, &e.Detail); err != nil {
			return nil, fmt.Errorf("AuditEntries scan: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.Method = model.Method(method)
		e.Category = model.Category(category)
		out = append(out, e)
	}
	return out, rows.Err()
}

func auditQuery(f model.AuditFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.IdentityKey != "" {
		where = append(where, "identity_key = "+arg(f.IdentityKey))
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(string(f.Category)))
	}
	if !f.Since.IsZero() {
		where = append(where, "logged_at >= "+arg(f.Since.UTC()))
	}
	if !f.Until.IsZero() {
		where = append(where, "logged_at < "+arg(f.Until.UTC()))
	}

	q := "SELECT seq, logged_at, identity_key, method, category, rfid_hash, detail FROM audit_log"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		q = "SELECT * FROM (" + q + " ORDER BY seq DESC LIMIT " + arg(f.Limit) + ") recent ORDER BY seq ASC"
	} else {
		q += " ORDER BY seq ASC"
	}
	return q, args
}

// ── transaction ──────────────────────────────────────────────────────────────

type pgTx struct {
	tx   pgx.Tx
	lock bool
}

func (t *pgTx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

func scanIdentity(row pgx.Row) (model.Identity, error) {
	var (
		id   model.Identity
		mode string
		rfid *string
	)
	if err := row.Scan(&id.Key, &mode, &rfid, &id.CreatedAt); err != nil {
		return model.Identity{}, err
	}
	id.Mode = model.Mode(mode)
	if rfid != nil {
		id.RFID = *rfid
	}
	id.CreatedAt = id.CreatedAt.UTC()
	return id, nil
}

func (t *pgTx) Identity(ctx context.Context, key string) (model.Identity, error) {
	q := `
SELECT identity_key, access_mode, rfid_id, created_at
FROM identities WHERE identity_key = $1` + t.forUpdate()
	id, err := scanIdentity(t.tx.QueryRow(ctx, q, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("Identity query: %w", err)
	}
	return id, nil
}

func (t *pgTx) IdentityByRFID(ctx context.Context, rfid string) (model.Identity, error) {
	q := `
SELECT identity_key, access_mode, rfid_id, created_at
FROM identities WHERE rfid_id = $1` + t.forUpdate()
	id, err := scanIdentity(t.tx.QueryRow(ctx, q, rfid))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Identity{}, fmt.Errorf("rfid id: %w", errs.ErrNotFound)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("IdentityByRFID query: %w", err)
	}
	return id, nil
}

func (t *pgTx) Rules(ctx context.Context, key string) ([]model.AccessRule, error) {
	if _, err := t.Identity(ctx, key); err != nil {
		return nil, err
	}

	const q = `
SELECT rule_id, seq, start_at, end_at, frequency, until_at, occurrence_count, created_at
FROM access_rules
WHERE identity_key = $1
ORDER BY seq ASC`
	rows, err := t.tx.Query(ctx, q, key)
	if err != nil {
		return nil, fmt.Errorf("Rules query: %w", err)
	}
	defer rows.Close()

	var out []model.AccessRule
	for rows.Next() {
		var (
			r     model.AccessRule
			start time.Time
			end   time.Time
			freq  *string
			until *time.Time
			count *int32
		)
		if err := rows.Scan(&r.ID, &r.Seq, &start, &end, &freq, &until, &count, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("Rules scan: %w", err)
		}
		r.IdentityKey = key
		r.CreatedAt = r.CreatedAt.UTC()
		r.Rule = schedule.Rule{Start: start.UTC(), End: end.UTC()}
		if freq != nil {
			rec := &schedule.Recurrence{Frequency: schedule.Frequency(*freq)}
			if count != nil {
				rec.Count = int(*count)
			}
			if until != nil {
				u := until.UTC()
				rec.Until = &u
			}
			r.Rule.Recurrence = rec
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateIdentity(ctx context.Context, id model.Identity) error {
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	if id.Mode == "" {
		id.Mode = model.ModeRules
	}
	const q = `
INSERT INTO identities (identity_key, access_mode, rfid_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)`
	_, err := t.tx.Exec(ctx, q, id.Key, string(id.Mode), nullString(id.RFID), id.CreatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("identity %q or its rfid id: %w", id.Key, errs.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("CreateIdentity insert: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteIdentity(ctx context.Context, key string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM identities WHERE identity_key = $1`, key)
	if err != nil {
		return fmt.Errorf("DeleteIdentity: %w", err)
	}
	return expectOne(tag, fmt.Sprintf("identity %q", key))
}

func (t *pgTx) SetMode(ctx context.Context, key string, mode model.Mode) error {
	const q = `UPDATE identities SET access_mode = $2, updated_at = now() WHERE identity_key = $1`
	tag, err := t.tx.Exec(ctx, q, key, string(mode))
	if err != nil {
		return fmt.Errorf("SetMode: %w", err)
	}
	return expectOne(tag, fmt.Sprintf("identity %q", key))
}

func (t *pgTx) SetRFID(ctx context.Context, key, rfid string) error {
	const q = `UPDATE identities SET rfid_id = $2, updated_at = now() WHERE identity_key = $1`
	tag, err := t.tx.Exec(ctx, q, key, nullString(rfid))
	if isUniqueViolation(err) {
		return fmt.Errorf("rfid id already assigned: %w", errs.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("SetRFID: %w", err)
	}
	return expectOne(tag, fmt.Sprintf("identity %q", key))
}

func (t *pgTx) InsertRule(ctx context.Context, rule model.AccessRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if rec := rule.Rule.Recurrence; rec != nil && (rec.Count < 0 || rec.Count > schedule.MaxCount) {
		return fmt.Errorf("InsertRule: count %d: %w", rec.Count, errs.ErrValidation)
	}
	// Locks the identity row so the next seq is computed by one writer at a time.
	if _, err := t.Identity(ctx, rule.IdentityKey); err != nil {
		return err
	}

	var (
		freq  *string
		until *time.Time
		count *int32
	)
	if rec := rule.Rule.Recurrence; rec != nil {
		f := string(rec.Frequency)
		freq = &f
		if rec.Until != nil {
			u := rec.Until.UTC()
			until = &u
		}
		if rec.Count > 0 {
			c := int32(rec.Count)
			count = &c
		}
	}

	const q = `
INSERT INTO access_rules (
  rule_id, identity_key, seq, start_at, end_at, frequency, until_at, occurrence_count, created_at
)
SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7, $8
FROM access_rules WHERE identity_key = $2`
	_, err := t.tx.Exec(ctx, q,
		rule.ID, rule.IdentityKey,
		rule.Rule.Start.UTC(), rule.Rule.End.UTC(),
		freq, until, count, rule.CreatedAt.UTC(),
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("identity %q: %w", rule.IdentityKey, errs.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("rule %s: %w", rule.ID, errs.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("InsertRule insert: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteRule(ctx context.Context, key string, id uuid.UUID) error {
	const q = `DELETE FROM access_rules WHERE identity_key = $1 AND rule_id = $2`
	tag, err := t.tx.Exec(ctx, q, key, id)
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	return expectOne(tag, "rule "+id.String())
}

func (t *pgTx) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var hash []byte
	if len(e.RFIDHash) > 0 {
		hash = e.RFIDHash
	}
	const q = `
INSERT INTO audit_log (logged_at, identity_key, method, category, rfid_hash, detail)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := t.tx.Exec(ctx, q, e.Timestamp.UTC(), e.IdentityKey, string(e.Method), string(e.Category), hash, e.Detail); err != nil {
		return fmt.Errorf("AppendAudit insert: %w", err)
	}
	return nil
}

func expectOne(tag pgconn.CommandTag, what string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, errs.ErrNotFound)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
