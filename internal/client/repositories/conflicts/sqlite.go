package conflicts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, job_id, local_version, remote_version, local_job, remote_job, detected_at, resolution, resolved_at`

func encode(j *domain.Job) ([]byte, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func decode(b []byte) (*domain.Job, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var j domain.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, c *models.ConflictRecord) (bool, error) {
	local, err := encode(c.Local)
	if err != nil {
		return false, fmt.Errorf("encode local job: %w", err)
	}
	remote, err := encode(c.Remote)
	if err != nil {
		return false, fmt.Errorf("encode remote job: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO conflicts (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		c.ID, c.JobID, c.LocalVersion, c.RemoteVersion, local, remote,
		dbx.Millis(c.DetectedAt), string(c.Resolution), dbx.NullMillis(c.ResolvedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert conflict: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	return n == 1, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.ConflictRecord, error) {
	var (
		c             models.ConflictRecord
		local, remote []byte
		detectedAt    int64
		resolution    string
		resolvedAt    sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.JobID, &c.LocalVersion, &c.RemoteVersion, &local, &remote, &detectedAt, &resolution, &resolvedAt); err != nil {
		return nil, err
	}
	var err error
	if c.Local, err = decode(local); err != nil {
		return nil, fmt.Errorf("decode local job: %w", err)
	}
	if c.Remote, err = decode(remote); err != nil {
		return nil, fmt.Errorf("decode remote job: %w", err)
	}
	c.DetectedAt = dbx.FromMillis(detectedAt)
	c.Resolution = models.Resolution(resolution)
	c.ResolvedAt = dbx.TimePtr(resolvedAt)
	return &c, nil
}

func (r *SQLiteRepository) one(ctx context.Context, where string, arg any) (*models.ConflictRecord, error) {
	c, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM conflicts `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.ConflictRecord, error) {
	return r.one(ctx, `WHERE id = ?`, id)
}

func (r *SQLiteRepository) UnresolvedForJob(ctx context.Context, jobID string) (*models.ConflictRecord, error) {
	return r.one(ctx, `WHERE job_id = ? AND resolution = 'unresolved'`, jobID)
}

func (r *SQLiteRepository) ListUnresolved(ctx context.Context) ([]*models.ConflictRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM conflicts WHERE resolution = 'unresolved' ORDER BY detected_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conflicts WHERE resolution = 'unresolved'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkResolved(ctx context.Context, id string, res models.Resolution, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE conflicts SET resolution = ?, resolved_at = ? WHERE id = ? AND resolution = 'unresolved'`,
		string(res), dbx.Millis(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve conflict: %w", err)
	}
	n, err := dbx.RowsAffected(result)
	return n == 1, err
}
