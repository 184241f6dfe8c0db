// Package repotest opens a migrated device database for repository tests.
package repotest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/fieldseal/internal/client/migrations"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func Open(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

// InsertJob writes a minimal job row directly.
func InsertJob(t *testing.T, db *sql.DB, id, workspace, status string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO jobs (id, workspace_id, status, last_updated) VALUES (?, ?, ?, 0)`, id, workspace, status)
	require.NoError(t, err)
}
