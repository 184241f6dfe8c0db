package seals

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/jmoiron/sqlx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type sealRow struct {
	JobID        string    `db:"job_id"`
	WorkspaceID  string    `db:"workspace_id"`
	EvidenceHash string    `db:"evidence_hash"`
	Signature    string    `db:"signature"`
	Algorithm    string    `db:"algorithm"`
	SealedAt     time.Time `db:"sealed_at"`
	SealedBy     string    `db:"sealed_by"`
	Snapshot     []byte    `db:"snapshot"`
}

func (r *PostgresRepository) Insert(ctx context.Context, s *evidence.Seal) error {
	query :=
		`INSERT INTO seals (job_id, workspace_id, evidence_hash, signature, algorithm, sealed_at, sealed_by, snapshot)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (job_id) DO NOTHING
		 `
	res, err := r.db.ExecContext(ctx, query,
		s.JobID, s.WorkspaceID, s.EvidenceHash, s.Signature, s.Algorithm, s.SealedAt.UTC(), s.SealedBy, s.Snapshot)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrAlreadySealed
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, jobID string) (*evidence.Seal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, workspace_id, evidence_hash, signature, algorithm, sealed_at, sealed_by, snapshot
		 FROM seals WHERE job_id = $1`, jobID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found []sealRow
	if err := sqlx.StructScan(rows, &found); err != nil {
		return nil, fmt.Errorf("scan seals: %w", err)
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	row := found[0]
	return &evidence.Seal{
		JobID:        row.JobID,
		WorkspaceID:  row.WorkspaceID,
		EvidenceHash: row.EvidenceHash,
		Signature:    row.Signature,
		Algorithm:    row.Algorithm,
		SealedAt:     row.SealedAt.UTC(),
		SealedBy:     row.SealedBy,
		Snapshot:     row.Snapshot,
	}, nil
}
