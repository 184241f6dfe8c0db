// Package seals stores evidence seals on the device. Rows are write-once;
// schema triggers reject updates and deletes.
package seals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
)

type Repository interface {
	// Insert returns common.ErrAlreadySealed when the job already has a seal.
	Insert(ctx context.Context, s *evidence.Seal) error
	Get(ctx context.Context, jobID string) (*evidence.Seal, error)
	List(ctx context.Context) ([]*evidence.Seal, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `job_id, workspace_id, evidence_hash, signature, algorithm, sealed_at, sealed_by, snapshot`

func (r *SQLiteRepository) Insert(ctx context.Context, s *evidence.Seal) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO seals (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING`,
		s.JobID, s.WorkspaceID, s.EvidenceHash, s.Signature, s.Algorithm, dbx.Millis(s.SealedAt), s.SealedBy, s.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to insert seal: %w", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (*evidence.Seal, error) {
	var (
		s        evidence.Seal
		sealedAt int64
	)
	if err := sc.Scan(&s.JobID, &s.WorkspaceID, &s.EvidenceHash, &s.Signature, &s.Algorithm, &sealedAt, &s.SealedBy, &s.Snapshot); err != nil {
		return nil, err
	}
	s.SealedAt = dbx.FromMillis(sealedAt)
	return &s, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, jobID string) (*evidence.Seal, error) {
	s, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM seals WHERE job_id = ?`, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("seal for job %s: %w", jobID, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*evidence.Seal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM seals ORDER BY sealed_at, job_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select seals: %w", err)
	}
	defer rows.Close()

	var result []*evidence.Seal
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
