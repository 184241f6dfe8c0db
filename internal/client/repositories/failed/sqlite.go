package failed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, type, entity_id, payload, retry_count, last_error, created_at, failed_at, acknowledged`

func (r *SQLiteRepository) Insert(ctx context.Context, f *models.FailedAction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO failed_actions (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		f.ID, string(f.Type), f.EntityID, []byte(f.Payload), f.RetryCount, f.LastError,
		dbx.Millis(f.CreatedAt), dbx.Millis(f.FailedAt), f.Acknowledged)
	if err != nil {
		return false, fmt.Errorf("failed to insert failed action: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	return n == 1, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.FailedAction, error) {
	var (
		f                   models.FailedAction
		typ                 string
		payload             []byte
		createdAt, failedAt int64
	)
	if err := s.Scan(&f.ID, &typ, &f.EntityID, &payload, &f.RetryCount, &f.LastError, &createdAt, &failedAt, &f.Acknowledged); err != nil {
		return nil, err
	}
	f.Type = models.ActionType(typ)
	f.Payload = payload
	f.CreatedAt = dbx.FromMillis(createdAt)
	f.FailedAt = dbx.FromMillis(failedAt)
	return &f, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.FailedAction, error) {
	f, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM failed_actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed action %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) List(ctx context.Context, includeAcknowledged bool) ([]*models.FailedAction, error) {
	query := `SELECT ` + columns + ` FROM failed_actions`
	if !includeAcknowledged {
		query += ` WHERE acknowledged = 0`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY failed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select failed actions: %w", err)
	}
	defer rows.Close()

	var result []*models.FailedAction
	for rows.Next() {
		f, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Acknowledge(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE failed_actions SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge action: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed action %s: %w", id, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM failed_actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete failed action: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CountOpen(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_actions WHERE acknowledged = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failed actions: %w", err)
	}
	return n, nil
}

// CountByEntity counts escalations of kind for the entity, acknowledged or
// not. failed_actions has no kind column, so the kind is matched by type.
func (r *SQLiteRepository) CountByEntity(ctx context.Context, kind models.EntityKind, entityID string) (int, error) {
	types := kind.Types()
	args := []any{entityID}
	for _, t := range types {
		args = append(args, string(t))
	}
	query := `SELECT COUNT(*) FROM failed_actions WHERE entity_id = ? AND type IN (?` + strings.Repeat(`, ?`, len(types)-1) + `)`
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failed actions: %w", err)
	}
	return n, nil
}
