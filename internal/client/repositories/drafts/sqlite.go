// Package drafts keeps unsaved form edits per job.
package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
)

type Repository interface {
	Save(ctx context.Context, d *models.Draft) error
	Get(ctx context.Context, jobID string) (*models.Draft, error)
	Delete(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]*models.Draft, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, d *models.Draft) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (job_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, d.JobID, []byte(d.Data), dbx.Millis(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, jobID string) (*models.Draft, error) {
	var (
		d         models.Draft
		data      []byte
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT job_id, data, updated_at FROM drafts WHERE job_id = ?`, jobID).
		Scan(&d.JobID, &data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft for job %s: %w", jobID, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	d.Data = data
	d.UpdatedAt = dbx.FromMillis(updatedAt)
	return &d, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, jobID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Draft, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT job_id, data, updated_at FROM drafts ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var result []*models.Draft
	for rows.Next() {
		var (
			d         models.Draft
			data      []byte
			updatedAt int64
		)
		if err := rows.Scan(&d.JobID, &data, &updatedAt); err != nil {
			return nil, err
		}
		d.Data = data
		d.UpdatedAt = dbx.FromMillis(updatedAt)
		result = append(result, &d)
	}
	return result, rows.Err()
}
