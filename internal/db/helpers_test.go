package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/glykeria-rk/thesisadmincli/internal/db"
)

// openTestDB returns a migrated in-memory SQLite connection with the same
// PRAGMAs as production. It is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:dbtest_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		t.Name(),
	)
	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(context.Background(), conn, db.DialectSQLite))
	return conn
}
