package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// IdentityKey and RFID of the starter identity. Defaults to
	// dev@example.com / AABBCCDD.
	IdentityKey string
	RFID        string
}

// SeedDev creates a starter identity with a DAILY 08:00-18:00 UTC rule
// beginning today, so a fresh dev database can answer verifications. It is
// idempotent.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	if opt.IdentityKey == "" {
		opt.IdentityKey = "dev@example.com"
	}
	if opt.RFID == "" {
		opt.RFID = "AABBCCDD"
	}
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO identities(identity_key, access_mode, rfid_id, created_at_ms, updated_at_ms)
VALUES (?, 'RULES', ?, ?, ?);`, opt.IdentityKey, opt.RFID, nowMs, nowMs)
	if err != nil {
		return fmt.Errorf("seed identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	// Daily 08:00-18:00 UTC starting today.
	y, m, d := now.Date()
	start := time.Date(y, m, d, 8, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Hour)

	if _, err := db.ExecContext(ctx, `
INSERT INTO access_rules(
  rule_id, identity_key, seq, start_us, end_us, frequency, created_at_ms
) VALUES ('00000000-0000-4000-8000-000000000001', ?, 1, ?, ?, 'DAILY', ?);`,
		opt.IdentityKey, start.UnixMicro(), end.UnixMicro(), nowMs,
	); err != nil {
		return fmt.Errorf("seed rule: %w", err)
	}

	return nil
}
