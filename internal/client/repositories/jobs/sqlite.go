package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/repositories/photos"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

const hashMsg = "evidence hash is immutable"

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db     dbx.DBTX
	photos *photos.SQLiteRepository
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, photos: photos.NewSQLiteRepository(db)}
}

const columns = `id, workspace_id, status, title, client, technician, address, notes, work_summary,
	scheduled_at, signer_name, signed_at, signature_ref, signature_hash,
	sealed_at, evidence_hash, archived_at, sync_status, base_version, last_updated`

const placeholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

func args(j *domain.Job) []any {
	var (
		signer, ref, sigHash sql.NullString
		signedAt             sql.NullInt64
	)
	if s := j.Signature; s != nil {
		signer = sql.NullString{String: s.SignerName, Valid: true}
		signedAt = dbx.NullMillis(&s.SignedAt)
		ref = dbx.NullString(s.ImageRef)
		sigHash = dbx.NullString(s.ImageHash)
	}
	return []any{
		j.ID, j.WorkspaceID, j.Status.String(), j.Title, j.Client, j.Technician, j.Address, j.Notes, j.WorkSummary,
		dbx.NullMillis(j.ScheduledAt), signer, signedAt, ref, sigHash,
		dbx.NullMillis(j.SealedAt), dbx.NullString(j.EvidenceHash), dbx.NullMillis(j.ArchivedAt),
		string(j.SyncStatus), j.BaseVersion, dbx.Millis(j.LastUpdated),
	}
}

func (r *SQLiteRepository) Save(ctx context.Context, j *domain.Job) error {
	query := `INSERT INTO jobs (` + columns + `) VALUES (` + placeholders + `)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			status = excluded.status,
			title = excluded.title,
			client = excluded.client,
			technician = excluded.technician,
			address = excluded.address,
			notes = excluded.notes,
			work_summary = excluded.work_summary,
			scheduled_at = excluded.scheduled_at,
			signer_name = excluded.signer_name,
			signed_at = excluded.signed_at,
			signature_ref = excluded.signature_ref,
			signature_hash = excluded.signature_hash,
			sealed_at = excluded.sealed_at,
			evidence_hash = excluded.evidence_hash,
			archived_at = excluded.archived_at,
			sync_status = excluded.sync_status,
			base_version = excluded.base_version,
			last_updated = excluded.last_updated
		WHERE jobs.sealed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, args(j)...)
	if err != nil {
		return dbx.TriggerError(fmt.Errorf("failed to upsert job: %w", err), hashMsg, common.ErrSealedJobImmutable)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrSealedJobImmutable
	}
	return nil
}

func (r *SQLiteRepository) Restore(ctx context.Context, j *domain.Job) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO jobs (`+columns+`) VALUES (`+placeholders+`)`, args(j)...); err != nil {
		return fmt.Errorf("failed to restore job %s: %w", j.ID, err)
	}
	for i := range j.Photos {
		p := j.Photos[i]
		p.JobID = j.ID
		if err := r.photos.Insert(ctx, &p); err != nil {
			return err
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*domain.Job, error) {
	var (
		j                                  domain.Job
		status, syncStatus                 string
		scheduledAt, signedAt, sealedAt    sql.NullInt64
		archivedAt                         sql.NullInt64
		signer, ref, sigHash, evidenceHash sql.NullString
		lastUpdated                        int64
	)
	err := s.Scan(&j.ID, &j.WorkspaceID, &status, &j.Title, &j.Client, &j.Technician, &j.Address, &j.Notes, &j.WorkSummary,
		&scheduledAt, &signer, &signedAt, &ref, &sigHash,
		&sealedAt, &evidenceHash, &archivedAt, &syncStatus, &j.BaseVersion, &lastUpdated)
	if err != nil {
		return nil, err
	}
	if j.Status, err = domain.ParseJobStatus(status); err != nil {
		return nil, err
	}
	j.SyncStatus = domain.SyncStatus(syncStatus)
	j.ScheduledAt = dbx.TimePtr(scheduledAt)
	j.SealedAt = dbx.TimePtr(sealedAt)
	j.ArchivedAt = dbx.TimePtr(archivedAt)
	j.EvidenceHash = evidenceHash.String
	j.LastUpdated = dbx.FromMillis(lastUpdated)
	if signer.Valid {
		j.Signature = &domain.Signature{SignerName: signer.String, ImageRef: ref.String, ImageHash: sigHash.String}
		if at := dbx.TimePtr(signedAt); at != nil {
			j.Signature.SignedAt = *at
		}
	}
	return &j, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	j, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	if j.Photos, err = r.photos.ListByJob(ctx, id); err != nil {
		return nil, err
	}
	return j, nil
}

// list reads every matching row before loading photos so that no cursor is
// open while the second query runs.
func (r *SQLiteRepository) list(ctx context.Context, where string, args ...any) ([]*domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM jobs `+where+` ORDER BY last_updated DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select jobs: %w", err)
	}
	var result []*domain.Job
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, j)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, j := range result {
		if j.Photos, err = r.photos.ListByJob(ctx, j.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *SQLiteRepository) ListByWorkspace(ctx context.Context, workspaceID string, includeArchived bool) ([]*domain.Job, error) {
	if includeArchived {
		return r.list(ctx, `WHERE workspace_id = ?`, workspaceID)
	}
	return r.list(ctx, `WHERE workspace_id = ? AND archived_at IS NULL`, workspaceID)
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	return r.list(ctx, `WHERE status = ?`, status.String())
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*domain.Job, error) {
	return r.list(ctx, ``)
}

func (r *SQLiteRepository) MarkSealed(ctx context.Context, id, evidenceHash string, sealedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, sealed_at = ?, evidence_hash = ?, last_updated = ?
		 WHERE id = ? AND sealed_at IS NULL`,
		domain.StatusSealed.String(), dbx.Millis(sealedAt), evidenceHash, dbx.Millis(sealedAt), id)
	if err != nil {
		return dbx.TriggerError(fmt.Errorf("failed to seal job: %w", err), hashMsg, common.ErrAlreadySealed)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return common.ErrAlreadySealed
	}
	return nil
}

func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, id string, s domain.SyncStatus) error {
	return r.exec(ctx, `UPDATE jobs SET sync_status = ? WHERE id = ?`, string(s), id)
}

func (r *SQLiteRepository) SetBaseVersion(ctx context.Context, id string, version int64) error {
	return r.exec(ctx, `UPDATE jobs SET base_version = ? WHERE id = ?`, version, id)
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
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

func (r *SQLiteRepository) ListArchivable(ctx context.Context, sealedBefore time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM jobs WHERE sealed_at IS NOT NULL AND archived_at IS NULL AND sealed_at < ?`,
		dbx.Millis(sealedBefore))
	if err != nil {
		return nil, fmt.Errorf("failed to select archivable jobs: %w", err)
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

func (r *SQLiteRepository) MarkArchived(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET archived_at = ?, status = ? WHERE id = ? AND sealed_at IS NOT NULL AND archived_at IS NULL`,
		dbx.Millis(at), domain.StatusArchived.String(), id)
	if err != nil {
		return false, fmt.Errorf("failed to archive job: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	return n == 1, err
}
