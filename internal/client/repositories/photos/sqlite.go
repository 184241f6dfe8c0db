package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

const sealedMsg = "sealed job is immutable"

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, job_id, taken_at, lat, lng, type, local_ref, remote_url, content_hash, sync_status`

func args(p *domain.Photo) []any {
	var lat, lng sql.NullFloat64
	if p.GPS != nil {
		lat = sql.NullFloat64{Float64: p.GPS.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: p.GPS.Lng, Valid: true}
	}
	return []any{p.ID, p.JobID, dbx.Millis(p.TakenAt), lat, lng, string(p.Type),
		p.LocalRef, p.RemoteURL, p.ContentHash, string(p.SyncStatus)}
}

func (r *SQLiteRepository) Add(ctx context.Context, p *domain.Photo) error {
	query := `INSERT INTO photos (` + columns + `)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM jobs WHERE id = ? AND sealed_at IS NULL)`
	res, err := r.db.ExecContext(ctx, query, append(args(p), p.JobID)...)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, p.JobID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", p.JobID, common.ErrorNotFound)
		}
		if err != nil {
			return err
		}
		return common.ErrSealedJobImmutable
	}
	return nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, p *domain.Photo) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO photos (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args(p)...)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (domain.Photo, error) {
	var (
		p        domain.Photo
		takenAt  int64
		lat, lng sql.NullFloat64
		typ, st  string
	)
	if err := s.Scan(&p.ID, &p.JobID, &takenAt, &lat, &lng, &typ, &p.LocalRef, &p.RemoteURL, &p.ContentHash, &st); err != nil {
		return p, err
	}
	p.TakenAt = dbx.FromMillis(takenAt)
	if lat.Valid && lng.Valid {
		p.GPS = &domain.GPS{Lat: lat.Float64, Lng: lng.Float64}
	}
	p.Type = domain.PhotoType(typ)
	p.SyncStatus = domain.SyncStatus(st)
	return p, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*domain.Photo, error) {
	p, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM photos WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return &p, nil
}

func (r *SQLiteRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Photo, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM photos WHERE job_id = ? ORDER BY taken_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to select photos: %w", err)
	}
	defer rows.Close()

	var result []domain.Photo
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id, remoteURL, contentHash string) error {
	return r.update(ctx, `UPDATE photos SET remote_url = ?, content_hash = ?, sync_status = ? WHERE id = ?`,
		remoteURL, contentHash, string(domain.SyncSynced), id)
}

func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, id string, s domain.SyncStatus) error {
	return r.update(ctx, `UPDATE photos SET sync_status = ? WHERE id = ?`, string(s), id)
}

func (r *SQLiteRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbx.TriggerError(fmt.Errorf("failed to update photo: %w", err), sealedMsg, common.ErrSealedJobImmutable)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
