package photos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/jmoiron/sqlx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, job_id, type, taken_at, lat, lng, content_hash, storage_key, uploaded`

type photoRow struct {
	ID          string          `db:"id"`
	JobID       string          `db:"job_id"`
	Type        string          `db:"type"`
	TakenAt     time.Time       `db:"taken_at"`
	Lat         sql.NullFloat64 `db:"lat"`
	Lng         sql.NullFloat64 `db:"lng"`
	ContentHash string          `db:"content_hash"`
	StorageKey  string          `db:"storage_key"`
	Uploaded    bool            `db:"uploaded"`
}

func (r photoRow) model() *models.PhotoObject {
	p := &models.PhotoObject{
		ID:          r.ID,
		JobID:       r.JobID,
		Type:        domain.PhotoType(r.Type),
		TakenAt:     r.TakenAt.UTC(),
		ContentHash: r.ContentHash,
		StorageKey:  r.StorageKey,
		Uploaded:    r.Uploaded,
	}
	if r.Lat.Valid && r.Lng.Valid {
		p.GPS = &domain.GPS{Lat: r.Lat.Float64, Lng: r.Lng.Float64}
	}
	return p
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.PhotoObject, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found []photoRow
	if err := sqlx.StructScan(rows, &found); err != nil {
		return nil, fmt.Errorf("scan photos: %w", err)
	}
	out := make([]*models.PhotoObject, 0, len(found))
	for _, row := range found {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, p *models.PhotoObject) error {
	query :=
		`INSERT INTO photos (id, job_id, type, taken_at, lat, lng, content_hash, storage_key, uploaded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		 ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, taken_at = EXCLUDED.taken_at, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			uploaded = photos.uploaded AND photos.content_hash = EXCLUDED.content_hash,
			content_hash = EXCLUDED.content_hash, storage_key = EXCLUDED.storage_key
		 `
	var lat, lng sql.NullFloat64
	if p.GPS != nil {
		lat = sql.NullFloat64{Float64: p.GPS.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: p.GPS.Lng, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.JobID, string(p.Type), p.TakenAt.UTC(), lat, lng, p.ContentHash, p.StorageKey)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.PhotoObject, error) {
	found, err := r.query(ctx, `SELECT `+selectColumns+` FROM photos WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	return found[0], nil
}

func (r *PostgresRepository) MarkUploaded(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE photos SET uploaded = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
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

func (r *PostgresRepository) ListByJob(ctx context.Context, jobID string) ([]*models.PhotoObject, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM photos WHERE job_id = $1 ORDER BY taken_at, id`, jobID)
}

func (r *PostgresRepository) CountUploaded(ctx context.Context, jobIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(jobIDs))
	if len(jobIDs) == 0 {
		return counts, nil
	}
	query, args, err := sqlx.In(
		`SELECT job_id, COUNT(*) FROM photos WHERE uploaded AND job_id IN (?) GROUP BY job_id`, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
