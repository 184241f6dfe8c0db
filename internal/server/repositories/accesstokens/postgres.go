package accesstokens

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/jmoiron/sqlx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type tokenRow struct {
	JTI         string       `db:"jti"`
	JobID       string       `db:"job_id"`
	WorkspaceID string       `db:"workspace_id"`
	IssuedBy    string       `db:"issued_by"`
	ExpiresAt   time.Time    `db:"expires_at"`
	RevokedAt   sql.NullTime `db:"revoked_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r *PostgresRepository) Insert(ctx context.Context, t *models.AccessToken) error {
	query :=
		`INSERT INTO access_tokens (jti, job_id, workspace_id, issued_by, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 `
	_, err := r.db.ExecContext(ctx, query,
		t.JTI, t.JobID, t.WorkspaceID, t.IssuedBy, t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, jti string) (*models.AccessToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT jti, job_id, workspace_id, issued_by, expires_at, revoked_at, created_at
		 FROM access_tokens WHERE jti = $1`, jti)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found []tokenRow
	if err := sqlx.StructScan(rows, &found); err != nil {
		return nil, fmt.Errorf("scan access tokens: %w", err)
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	row := found[0]
	t := &models.AccessToken{
		JTI:         row.JTI,
		JobID:       row.JobID,
		WorkspaceID: row.WorkspaceID,
		IssuedBy:    row.IssuedBy,
		ExpiresAt:   row.ExpiresAt.UTC(),
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if row.RevokedAt.Valid {
		at := row.RevokedAt.Time.UTC()
		t.RevokedAt = &at
	}
	return t, nil
}

func (r *PostgresRepository) RevokeForJob(ctx context.Context, jobID string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE access_tokens SET revoked_at = $2 WHERE job_id = $1 AND revoked_at IS NULL`, jobID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res)
}
