package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	dbpkg "github.com/glykeria-rk/thesisadmincli/internal/db"
	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/model"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/schedule"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// Store keeps identities, rules and the audit log in SQLite. Writes run on
// the single-writer Worker; View uses a throwaway transaction on the pool.
type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlTx{tx: tx})
	})
}

func (s *Store) View(ctx context.Context, fn store.TxFn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("View begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, &sqlTx{tx: tx})
}

func (s *Store) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT identity_key, access_mode, rfid_id, created_at_ms
FROM identities
ORDER BY identity_key;
`)
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
	var (
		where []string
		args  []any
	)
	if f.IdentityKey != "" {
		where = append(where, "identity_key = ?")
		args = append(args, f.IdentityKey)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if !f.Since.IsZero() {
		where = append(where, "logged_at_us >= ?")
		args = append(args, f.Since.UnixMicro())
	}
	if !f.Until.IsZero() {
		where = append(where, "logged_at_us < ?")
		args = append(args, f.Until.UnixMicro())
	}

	q := "SELECT seq, logged_at_us, identity_key, method, category, rfid_hash, detail FROM audit_log"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		// Most recent Limit entries, returned oldest first.
		q = "SELECT * FROM (" + q + " ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC;"
		args = append(args, f.Limit)
	} else {
		q += " ORDER BY seq ASC;"
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("AuditEntries query: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e        model.AuditEntry
			loggedUs int64
			method   string
			category string
		)
		if err := rows.Scan(&e.Seq, &loggedUs, &e.IdentityKey, &method, &category, &e.RFIDHash, &e.Detail); err != nil {
			return nil, fmt.Errorf("AuditEntries scan: %w", err)
		}
		e.Timestamp = time.UnixMicro(loggedUs).UTC()
		e.Method = model.Method(method)
		e.Category = model.Category(category)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── transaction ──────────────────────────────────────────────────────────────

type sqlTx struct {
	tx *sql.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIdentity(sc scanner) (model.Identity, error) {
	var (
		id        model.Identity
		mode      string
		rfid      sql.NullString
		createdMs int64
	)
	if err := sc.Scan(&id.Key, &mode, &rfid, &createdMs); err != nil {
		return model.Identity{}, err
	}
	id.Mode = model.Mode(mode)
	id.RFID = rfid.String
	id.CreatedAt = time.UnixMilli(createdMs).UTC()
	return id, nil
}

func (t *sqlTx) Identity(ctx context.Context, key string) (model.Identity, error) {
	id, err := scanIdentity(t.tx.QueryRowContext(ctx, `
SELECT identity_key, access_mode, rfid_id, created_at_ms
FROM identities WHERE identity_key = ?;
`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, fmt.Errorf("identity %q: %w", key, errs.ErrNotFound)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("Identity query: %w", err)
	}
	return id, nil
}

func (t *sqlTx) IdentityByRFID(ctx context.Context, rfid string) (model.Identity, error) {
	id, err := scanIdentity(t.tx.QueryRowContext(ctx, `
SELECT identity_key, access_mode, rfid_id, created_at_ms
FROM identities WHERE rfid_id = ?;
`, rfid))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, fmt.Errorf("rfid id: %w", errs.ErrNotFound)
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("IdentityByRFID query: %w", err)
	}
	return id, nil
}

func (t *sqlTx) Rules(ctx context.Context, key string) ([]model.AccessRule, error) {
	if _, err := t.Identity(ctx, key); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx, `
SELECT rule_id, seq, start_us, end_us, frequency, until_us, occurrence_count, created_at_ms
FROM access_rules
WHERE identity_key = ?
ORDER BY seq ASC;
`, key)
	if err != nil {
		return nil, fmt.Errorf("Rules query: %w", err)
	}
	defer rows.Close()

	var out []model.AccessRule
	for rows.Next() {
		var (
			rawID     string
			seq       int64
			startUs   int64
			endUs     int64
			freq      sql.NullString
			untilUs   sql.NullInt64
			count     sql.NullInt64
			createdMs int64
		)
		if err := rows.Scan(&rawID, &seq, &startUs, &endUs, &freq, &untilUs, &count, &createdMs); err != nil {
			return nil, fmt.Errorf("Rules scan: %w", err)
		}
		id, err := uuid.FromString(rawID)
		if err != nil {
			return nil, fmt.Errorf("Rules rule_id %q: %w", rawID, err)
		}

		rule := schedule.Rule{
			Start: time.UnixMicro(startUs).UTC(),
			End:   time.UnixMicro(endUs).UTC(),
		}
		if freq.Valid {
			rec := &schedule.Recurrence{Frequency: schedule.Frequency(freq.String), Count: int(count.Int64)}
			if untilUs.Valid {
				u := time.UnixMicro(untilUs.Int64).UTC()
				rec.Until = &u
			}
			rule.Recurrence = rec
		}

		out = append(out, model.AccessRule{
			ID:          id,
			IdentityKey: key,
			Seq:         seq,
			Rule:        rule,
			CreatedAt:   time.UnixMilli(createdMs).UTC(),
		})
	}
	return out, rows.Err()
}

func (t *sqlTx) CreateIdentity(ctx context.Context, id model.Identity) error {
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	if id.Mode == "" {
		id.Mode = model.ModeRules
	}
	ms := id.CreatedAt.UTC().UnixMilli()

	var exists int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE identity_key = ?;`, id.Key).Scan(&exists)
	if err == nil {
		return fmt.Errorf("identity %q: %w", id.Key, errs.ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("CreateIdentity lookup: %w", err)
	}
	if id.RFID != "" {
		if err := t.checkRFIDFree(ctx, id.Key, id.RFID); err != nil {
			return err
		}
	}

	if _, err := t.tx.ExecContext(ctx, `
INSERT INTO identities(identity_key, access_mode, rfid_id, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?);
`, id.Key, string(id.Mode), nullString(id.RFID), ms, ms); err != nil {
		return fmt.Errorf("CreateIdentity insert: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteIdentity(ctx context.Context, key string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM identities WHERE identity_key = ?;`, key)
	if err != nil {
		return fmt.Errorf("DeleteIdentity: %w", err)
	}
	return expectOne(res, fmt.Sprintf("identity %q", key))
}

func (t *sqlTx) SetMode(ctx context.Context, key string, mode model.Mode) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE identities SET access_mode = ?, updated_at_ms = ? WHERE identity_key = ?;
`, string(mode), time.Now().UTC().UnixMilli(), key)
	if err != nil {
		return fmt.Errorf("SetMode: %w", err)
	}
	return expectOne(res, fmt.Sprintf("identity %q", key))
}

func (t *sqlTx) SetRFID(ctx context.Context, key, rfid string) error {
	if rfid != "" {
		if err := t.checkRFIDFree(ctx, key, rfid); err != nil {
			return err
		}
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE identities SET rfid_id = ?, updated_at_ms = ? WHERE identity_key = ?;
`, nullString(rfid), time.Now().UTC().UnixMilli(), key)
	if err != nil {
		return fmt.Errorf("SetRFID: %w", err)
	}
	return expectOne(res, fmt.Sprintf("identity %q", key))
}

func (t *sqlTx) checkRFIDFree(ctx context.Context, key, rfid string) error {
	var owner string
	err := t.tx.QueryRowContext(ctx, `SELECT identity_key FROM identities WHERE rfid_id = ?;`, rfid).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("rfid lookup: %w", err)
	}
	if owner != key {
		return fmt.Errorf("rfid id already assigned: %w", errs.ErrConflict)
	}
	return nil
}

func (t *sqlTx) InsertRule(ctx context.Context, rule model.AccessRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if _, err := t.Identity(ctx, rule.IdentityKey); err != nil {
		return err
	}

	var seq int64
	if err := t.tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0) + 1 FROM access_rules WHERE identity_key = ?;
`, rule.IdentityKey).Scan(&seq); err != nil {
		return fmt.Errorf("InsertRule next seq: %w", err)
	}

	var (
		freq  any
		until any
		count any
	)
	if rec := rule.Rule.Recurrence; rec != nil {
		freq = string(rec.Frequency)
		if rec.Until != nil {
			until = rec.Until.UnixMicro()
		}
		if rec.Count > 0 {
			count = rec.Count
		}
	}

	if _, err := t.tx.ExecContext(ctx, `
INSERT INTO access_rules(
  rule_id, identity_key, seq, start_us, end_us, frequency, until_us, occurrence_count, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		rule.ID.String(), rule.IdentityKey, seq,
		rule.Rule.Start.UnixMicro(), rule.Rule.End.UnixMicro(),
		freq, until, count, rule.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("InsertRule insert: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteRule(ctx context.Context, key string, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, `
DELETE FROM access_rules WHERE identity_key = ? AND rule_id = ?;
`, key, id.String())
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	return expectOne(res, "rule "+id.String())
}

func (t *sqlTx) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var hash any
	if len(e.RFIDHash) > 0 {
		hash = e.RFIDHash
	}
	if _, err := t.tx.ExecContext(ctx, `
INSERT INTO audit_log(logged_at_us, identity_key, method, category, rfid_hash, detail)
VALUES (?, ?, ?, ?, ?, ?);
`, e.Timestamp.UnixMicro(), e.IdentityKey, string(e.Method), string(e.Category), hash, e.Detail); err != nil {
		return fmt.Errorf("AppendAudit insert: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, errs.ErrNotFound)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
