package contacts

import (
	"context"
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

type contactRow struct {
	ID             string    `db:"id"`
	WorkspaceID    string    `db:"workspace_id"`
	Kind           string    `db:"kind"`
	Name           string    `db:"name"`
	Email          string    `db:"email"`
	Phone          string    `db:"phone"`
	LastMutationID string    `db:"last_mutation_id"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r contactRow) model() *models.StoredContact {
	return &models.StoredContact{
		Contact: domain.Contact{
			ID:          r.ID,
			WorkspaceID: r.WorkspaceID,
			Kind:        domain.ContactKind(r.Kind),
			Name:        r.Name,
			Email:       r.Email,
			Phone:       r.Phone,
			SyncStatus:  domain.SyncSynced,
			UpdatedAt:   r.UpdatedAt.UTC(),
		},
		LastMutationID: r.LastMutationID,
	}
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.StoredContact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found []contactRow
	if err := sqlx.StructScan(rows, &found); err != nil {
		return nil, fmt.Errorf("scan contacts: %w", err)
	}
	out := make([]*models.StoredContact, 0, len(found))
	for _, row := range found {
		out = append(out, row.model())
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.StoredContact, error) {
	found, err := r.query(ctx,
		`SELECT id, workspace_id, kind, name, email, phone, last_mutation_id, updated_at
		 FROM contacts WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, common.ErrorNotFound
	}
	return found[0], nil
}

// Upsert is last-write-wins; the row is left alone when it already carries
// the same mutation id.
func (r *PostgresRepository) Upsert(ctx context.Context, m *models.StoredContact) (bool, error) {
	query :=
		`INSERT INTO contacts (id, workspace_id, kind, name, email, phone, last_mutation_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, name = EXCLUDED.name, email = EXCLUDED.email,
			phone = EXCLUDED.phone, last_mutation_id = EXCLUDED.last_mutation_id,
			updated_at = EXCLUDED.updated_at
		 WHERE contacts.last_mutation_id <> EXCLUDED.last_mutation_id
		 `
	c := &m.Contact
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.WorkspaceID, string(c.Kind), c.Name, c.Email, c.Phone, m.LastMutationID, c.UpdatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByWorkspace returns all contacts of the workspace when kind is empty.
func (r *PostgresRepository) ListByWorkspace(ctx context.Context, workspaceID string, kind domain.ContactKind) ([]*models.StoredContact, error) {
	return r.query(ctx,
		`SELECT id, workspace_id, kind, name, email, phone, last_mutation_id, updated_at
		 FROM contacts WHERE workspace_id = $1 AND ($2 = '' OR kind = $2)
		 ORDER BY name, id`, workspaceID, string(kind))
}
