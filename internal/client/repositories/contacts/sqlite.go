// Package contacts stores the clients and technicians a workspace assigns
// to jobs.
package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

type Repository interface {
	Save(ctx context.Context, c *domain.Contact) error
	Get(ctx context.Context, id string) (*domain.Contact, error)
	List(ctx context.Context, workspaceID string, kind domain.ContactKind) ([]*domain.Contact, error)
	ListUnsynced(ctx context.Context) ([]*domain.Contact, error)
	SetSyncStatus(ctx context.Context, id string, s domain.SyncStatus) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `id, workspace_id, kind, name, email, phone, sync_status, updated_at`

func (r *SQLiteRepository) Save(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO contacts (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_id = excluded.workspace_id,
			kind = excluded.kind,
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			sync_status = excluded.sync_status,
			updated_at = excluded.updated_at`,
		c.ID, c.WorkspaceID, string(c.Kind), c.Name, c.Email, c.Phone, string(c.SyncStatus), dbx.Millis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*domain.Contact, error) {
	var (
		c         domain.Contact
		kind, st  string
		updatedAt int64
	)
	if err := s.Scan(&c.ID, &c.WorkspaceID, &kind, &c.Name, &c.Email, &c.Phone, &st, &updatedAt); err != nil {
		return nil, err
	}
	c.Kind = domain.ContactKind(kind)
	c.SyncStatus = domain.SyncStatus(st)
	c.UpdatedAt = dbx.FromMillis(updatedAt)
	return &c, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM contacts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contact %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM contacts `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select contacts: %w", err)
	}
	defer rows.Close()

	var result []*domain.Contact
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) List(ctx context.Context, workspaceID string, kind domain.ContactKind) ([]*domain.Contact, error) {
	return r.query(ctx, `WHERE workspace_id = ? AND kind = ?`, workspaceID, string(kind))
}

func (r *SQLiteRepository) ListUnsynced(ctx context.Context) ([]*domain.Contact, error) {
	return r.query(ctx, `WHERE sync_status <> ?`, string(domain.SyncSynced))
}

func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, id string, s domain.SyncStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE contacts SET sync_status = ? WHERE id = ?`, string(s), id)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("contact %s: %w", id, common.ErrorNotFound)
	}
	return nil
}
