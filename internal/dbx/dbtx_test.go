package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:dbx_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM t`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('ok')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, countRows(t, db), "must commit on success")
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('fail')`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.Error(t, err)

	require.Equal(t, 0, countRows(t, db), "must rollback when fn returns error")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, countRows(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO t(v) VALUES ('panic')`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db, err := sql.Open("sqlite", "file:dbx_closed?mode=memory")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		return nil
	})
	require.Error(t, err, "begin should fail when DB is closed")
}

func TestRowsAffected(t *testing.T) {
	n, err := RowsAffected(sqlmock.NewResult(0, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = RowsAffected(sqlmock.NewErrorResult(errors.New("driver")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected")
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 11, 12, 345_000_000, time.FixedZone("X", 3600))
	got := FromMillis(Millis(ts))
	assert.True(t, got.Equal(ts))
	assert.Equal(t, time.UTC, got.Location())

	assert.False(t, NullMillis(nil).Valid)
	assert.False(t, NullMillis(&time.Time{}).Valid)

	nm := NullMillis(&ts)
	require.True(t, nm.Valid)
	back := TimePtr(nm)
	require.NotNil(t, back)
	assert.True(t, back.Equal(ts))
	assert.Nil(t, TimePtr(sql.NullInt64{}))
}

func TestNullString(t *testing.T) {
	assert.False(t, NullString("").Valid)
	assert.Equal(t, sql.NullString{String: "a", Valid: true}, NullString("a"))
}

func TestTriggerError(t *testing.T) {
	target := errors.New("target")
	err := TriggerError(errors.New("constraint failed: seal records are immutable (1811)"), "seal records are immutable", target)
	assert.ErrorIs(t, err, target)

	other := errors.New("disk I/O error")
	assert.Equal(t, other, TriggerError(other, "seal records are immutable", target))
	assert.NoError(t, TriggerError(nil, "x", target))
}
