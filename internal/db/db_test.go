package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glykeria-rk/thesisadmincli/internal/db"
)

func TestMigrate_IsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background(), conn, db.DialectSQLite))

	for _, table := range []string{"identities", "access_rules", "audit_log"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestMigrate_UnknownDialect(t *testing.T) {
	conn := openTestDB(t)
	require.Error(t, db.Migrate(context.Background(), conn, db.Dialect("oracle")))
}

func TestOpen_CreatesFileAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lock.db")

	conn, err := db.Open(context.Background(), db.Config{Path: path})
	require.NoError(t, err)
	defer conn.Close()

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestSeedDev_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SeedDev(ctx, conn, db.SeedDevOptions{}))
	require.NoError(t, db.SeedDev(ctx, conn, db.SeedDevOptions{}))

	var identities, rules int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&identities))
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM access_rules`).Scan(&rules))
	assert.Equal(t, 1, identities)
	assert.Equal(t, 1, rules)
}

func TestSeedDev_DailyOfficeHoursRule(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, db.SeedDev(context.Background(), conn, db.SeedDevOptions{}))

	var (
		startUS, endUS int64
		freq           string
		count          sql.NullInt64
		until          sql.NullInt64
	)
	require.NoError(t, conn.QueryRow(
		`SELECT start_us, end_us, frequency, occurrence_count, until_us FROM access_rules`,
	).Scan(&startUS, &endUS, &freq, &count, &until))

	start := time.UnixMicro(startUS).UTC()
	assert.Equal(t, "DAILY", freq)
	assert.False(t, count.Valid)
	assert.False(t, until.Valid)
	assert.Equal(t, 8, start.Hour())
	assert.Equal(t, 0, start.Minute())
	assert.Equal(t, 10*time.Hour, time.UnixMicro(endUS).Sub(time.UnixMicro(startUS)))
}

func TestWorker_CommitsAndRollsBack(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	defer w.Close()
	ctx := context.Background()

	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO identities(identity_key, created_at_ms, updated_at_ms) VALUES ('a@example.com', 0, 0)`)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO identities(identity_key, created_at_ms, updated_at_ms) VALUES ('b@example.com', 0, 0)`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM identities`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWorker_CancelledContextRunsNothing(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := w.Do(ctx, func(context.Context, *sql.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestWorker_SerializesConcurrentWrites(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	defer w.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `INSERT INTO audit_log(logged_at_us, method, category) VALUES (0, 'm', 'c')`)
				return err
			})
		}()
	}
	wg.Wait()

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n))
	assert.Equal(t, 20, n)
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openTestDB(t)
	w := db.NewWorker(conn)
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	require.ErrorIs(t, err, db.ErrWorkerClosed)
}
