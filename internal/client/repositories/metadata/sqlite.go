package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/fieldseal/internal/dbx"
)

const (
	keySchemaVersion = "schema_version"
	keyDeviceID      = "device_id"
)

// SQLiteRepository stores each fact as one row of the metadata table. The
// table is part of the first migration, so the schema version stays readable
// on every layout this build may have to rescue.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SchemaVersion(ctx context.Context) (int64, bool, error) {
	raw, ok, err := r.read(ctx, keySchemaVersion)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("schema version %q is not an integer: %w", raw, err)
	}
	return v, true, nil
}

func (r *SQLiteRepository) SetSchemaVersion(ctx context.Context, v int64) error {
	if v <= 0 {
		return fmt.Errorf("invalid schema version %d", v)
	}
	return r.write(ctx, keySchemaVersion, strconv.FormatInt(v, 10))
}

func (r *SQLiteRepository) DeviceID(ctx context.Context) (string, error) {
	id, _, err := r.read(ctx, keyDeviceID)
	return id, err
}

func (r *SQLiteRepository) SetDeviceID(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("device id must not be empty")
	}
	return r.write(ctx, keyDeviceID, id)
}

func (r *SQLiteRepository) read(ctx context.Context, key string) (string, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(value), true, nil
}

func (r *SQLiteRepository) write(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, []byte(value))
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
