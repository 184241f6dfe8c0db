package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const hashImmutableMsg = "evidence hash is immutable"

const selectColumns = `id, workspace_id, status, title, client, technician, address, notes,
		work_summary, scheduled_at, signer_name, signed_at, signature_ref, signature_hash,
		sealed_at, evidence_hash, archived_at, version, last_mutation_id, updated_by, last_updated`

type jobRow struct {
	ID             string         `db:"id"`
	WorkspaceID    string         `db:"workspace_id"`
	Status         string         `db:"status"`
	Title          string         `db:"title"`
	Client         string         `db:"client"`
	Technician     string         `db:"technician"`
	Address        string         `db:"address"`
	Notes          string         `db:"notes"`
	WorkSummary    string         `db:"work_summary"`
	ScheduledAt    sql.NullTime   `db:"scheduled_at"`
	SignerName     sql.NullString `db:"signer_name"`
	SignedAt       sql.NullTime   `db:"signed_at"`
	SignatureRef   sql.NullString `db:"signature_ref"`
	SignatureHash  sql.NullString `db:"signature_hash"`
	SealedAt       sql.NullTime   `db:"sealed_at"`
	EvidenceHash   sql.NullString `db:"evidence_hash"`
	ArchivedAt     sql.NullTime   `db:"archived_at"`
	Version        int64          `db:"version"`
	LastMutationID string         `db:"last_mutation_id"`
	UpdatedBy      string         `db:"updated_by"`
	LastUpdated    time.Time      `db:"last_updated"`
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func (r jobRow) model() (*models.StoredJob, error) {
	status, err := domain.ParseJobStatus(r.Status)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", r.ID, err)
	}
	j := domain.Job{
		ID:           r.ID,
		WorkspaceID:  r.WorkspaceID,
		Status:       status,
		Title:        r.Title,
		Client:       r.Client,
		Technician:   r.Technician,
		Address:      r.Address,
		Notes:        r.Notes,
		WorkSummary:  r.WorkSummary,
		ScheduledAt:  timePtr(r.ScheduledAt),
		SealedAt:     timePtr(r.SealedAt),
		EvidenceHash: r.EvidenceHash.String,
		ArchivedAt:   timePtr(r.ArchivedAt),
		SyncStatus:   domain.SyncSynced,
		BaseVersion:  r.Version,
		LastUpdated:  r.LastUpdated.UTC(),
	}
	if r.SignerName.Valid {
		j.Signature = &domain.Signature{
			SignerName: r.SignerName.String,
			SignedAt:   r.SignedAt.Time.UTC(),
			ImageRef:   r.SignatureRef.String,
			ImageHash:  r.SignatureHash.String,
		}
	}
	return &models.StoredJob{Job: j, Version: r.Version, LastMutationID: r.LastMutationID, UpdatedBy: r.UpdatedBy}, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.StoredJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found []jobRow
	if err := sqlx.StructScan(rows, &found); err != nil {
		return nil, fmt.Errorf("scan jobs: %w", err)
	}
	out := make([]*models.StoredJob, 0, len(found))
	for _, row := range found {
		m, err := row.model()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, id string) (*models.StoredJob, error) {
	found, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	return found[0], nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.StoredJob, error) {
	return r.one(ctx, `SELECT `+selectColumns+` FROM jobs WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.StoredJob, error) {
	return r.one(ctx, `SELECT `+selectColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id)
}

func signatureArgs(s *domain.Signature) (name sql.NullString, at sql.NullTime, ref, hash sql.NullString) {
	if s == nil {
		return
	}
	return sql.NullString{String: s.SignerName, Valid: true}, nullTime(&s.SignedAt), dbx.NullString(s.ImageRef), dbx.NullString(s.ImageHash)
}

func (r *PostgresRepository) Insert(ctx context.Context, m *models.StoredJob) error {
	query :=
		`INSERT INTO jobs (id, workspace_id, status, title, client, technician, address, notes,
			work_summary, scheduled_at, signer_name, signed_at, signature_ref, signature_hash,
			version, last_mutation_id, updated_by, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 `
	j := &m.Job
	name, signedAt, ref, hash := signatureArgs(j.Signature)
	_, err := r.db.ExecContext(ctx, query,
		j.ID, j.WorkspaceID, j.Status.String(), j.Title, j.Client, j.Technician, j.Address, j.Notes,
		j.WorkSummary, nullTime(j.ScheduledAt), name, signedAt, ref, hash,
		m.Version, m.LastMutationID, m.UpdatedBy, j.LastUpdated.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update never touches the seal columns; sealing goes through MarkSealed.
func (r *PostgresRepository) Update(ctx context.Context, m *models.StoredJob, prevVersion int64) error {
	query :=
		`UPDATE jobs SET status = $2, title = $3, client = $4, technician = $5, address = $6,
			notes = $7, work_summary = $8, scheduled_at = $9, signer_name = $10, signed_at = $11,
			signature_ref = $12, signature_hash = $13, version = $14, last_mutation_id = $15,
			updated_by = $16, last_updated = $17
		 WHERE id = $1 AND version = $18 AND sealed_at IS NULL
		 `
	j := &m.Job
	name, signedAt, ref, hash := signatureArgs(j.Signature)
	res, err := r.db.ExecContext(ctx, query,
		j.ID, j.Status.String(), j.Title, j.Client, j.Technician, j.Address,
		j.Notes, j.WorkSummary, nullTime(j.ScheduledAt), name, signedAt,
		ref, hash, m.Version, m.LastMutationID,
		m.UpdatedBy, j.LastUpdated.UTC(), prevVersion)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.TriggerError(err, hashImmutableMsg, common.ErrSealedJobImmutable))
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepository) MarkSealed(ctx context.Context, id, evidenceHash string, at time.Time) (int64, error) {
	query :=
		`UPDATE jobs SET status = $2, sealed_at = $3, evidence_hash = $4, version = version + 1, last_updated = $3
		 WHERE id = $1 AND sealed_at IS NULL
		 RETURNING version
		 `
	var version int64
	err := r.db.QueryRowContext(ctx, query, id, domain.StatusSealed.String(), at.UTC(), evidenceHash).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrAlreadySealed
		}
		return 0, fmt.Errorf("db error: %w", dbx.TriggerError(err, hashImmutableMsg, common.ErrSealedJobImmutable))
	}
	return version, nil
}

func (r *PostgresRepository) ListByWorkspace(ctx context.Context, workspaceID string, includeArchived bool) ([]*models.StoredJob, error) {
	query := `SELECT ` + selectColumns + ` FROM jobs
		 WHERE workspace_id = $1 AND ($2 OR archived_at IS NULL)
		 ORDER BY last_updated DESC, id`
	return r.query(ctx, query, workspaceID, includeArchived)
}

func (r *PostgresRepository) ListArchivable(ctx context.Context, sealedBefore time.Time) ([]string, error) {
	query :=
		`SELECT id FROM jobs
		 WHERE sealed_at IS NOT NULL AND archived_at IS NULL AND sealed_at < $1
		 ORDER BY sealed_at
		 `
	rows, err := r.db.QueryContext(ctx, query, sealedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) MarkArchived(ctx context.Context, jobID string, at time.Time) (bool, error) {
	query :=
		`UPDATE jobs SET status = $2, archived_at = $3, version = version + 1
		 WHERE id = $1 AND sealed_at IS NOT NULL AND archived_at IS NULL
		 `
	res, err := r.db.ExecContext(ctx, query, jobID, domain.StatusArchived.String(), at.UTC())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
