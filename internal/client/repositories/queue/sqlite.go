package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const columns = `seq, id, type, entity_id, payload, state, retry_count, next_attempt_at, last_error, created_at, updated_at`

func (r *SQLiteRepository) Insert(ctx context.Context, a *models.QueueAction) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_actions (id, type, entity_kind, entity_id, payload, state, retry_count, next_attempt_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Type), string(a.Type.Kind()), a.EntityID, []byte(a.Payload), string(a.State), a.RetryCount,
		dbx.NullMillis(a.NextAttemptAt), a.LastError, dbx.Millis(a.CreatedAt), dbx.Millis(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue action: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read action seq: %w", err)
	}
	a.Seq = seq
	return nil
}

// InsertAhead enqueues a in front of the actions already queued for its
// entity. Those move to the tail in their existing order; other lanes are
// untouched. Callers run it inside a transaction.
func (r *SQLiteRepository) InsertAhead(ctx context.Context, a *models.QueueAction) error {
	behind, err := r.ListByEntity(ctx, a.Type.Kind(), a.EntityID)
	if err != nil {
		return err
	}
	if err := r.Insert(ctx, a); err != nil {
		return err
	}
	for _, b := range behind {
		var seq int64
		err := r.db.QueryRowContext(ctx, `
			UPDATE queue_actions SET seq = (SELECT MAX(seq) + 1 FROM queue_actions)
			WHERE id = ? RETURNING seq`, b.ID).Scan(&seq)
		if err != nil {
			return fmt.Errorf("failed to move action %s behind %s: %w", b.ID, a.ID, err)
		}
		b.Seq = seq
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.QueueAction, error) {
	var (
		a                    models.QueueAction
		typ, state           string
		payload              []byte
		next                 sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := s.Scan(&a.Seq, &a.ID, &typ, &a.EntityID, &payload, &state, &a.RetryCount, &next, &a.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Type = models.ActionType(typ)
	a.State = models.QueueState(state)
	a.Payload = payload
	a.NextAttemptAt = dbx.TimePtr(next)
	a.CreatedAt = dbx.FromMillis(createdAt)
	a.UpdatedAt = dbx.FromMillis(updatedAt)
	return &a, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.QueueAction, error) {
	a, err := scan(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM queue_actions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.QueueAction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM queue_actions `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select actions: %w", err)
	}
	defer rows.Close()

	var result []*models.QueueAction
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.QueueAction, error) {
	return r.query(ctx, ``)
}

func (r *SQLiteRepository) ListByEntity(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.QueueAction, error) {
	return r.query(ctx, `WHERE entity_kind = ? AND entity_id = ?`, string(kind), entityID)
}

func (r *SQLiteRepository) Update(ctx context.Context, a *models.QueueAction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_actions SET state = ?, retry_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(a.State), a.RetryCount, dbx.NullMillis(a.NextAttemptAt), a.LastError, dbx.Millis(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update action: %w", err)
	}
	n, err := dbx.RowsAffected(res)
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("action %s: %w", a.ID, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM queue_actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByEntity(ctx context.Context, kind models.EntityKind, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_actions WHERE entity_kind = ? AND entity_id = ?`, string(kind), entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete actions: %w", err)
	}
	return dbx.RowsAffected(res)
}

func (r *SQLiteRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM queue_actions`)
}

func (r *SQLiteRepository) CountByEntity(ctx context.Context, kind models.EntityKind, entityID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM queue_actions WHERE entity_kind = ? AND entity_id = ?`, string(kind), entityID)
}

func (r *SQLiteRepository) HasType(ctx context.Context, t models.ActionType, entityID string) (bool, error) {
	n, err := r.count(ctx, `SELECT COUNT(*) FROM queue_actions WHERE type = ? AND entity_id = ?`, string(t), entityID)
	return n > 0, err
}

func (r *SQLiteRepository) RecoverInFlight(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE queue_actions SET state = ?, updated_at = ? WHERE state = ?`,
		string(models.StateRetrying), dbx.Millis(now), string(models.StateInFlight))
	if err != nil {
		return 0, fmt.Errorf("failed to recover in-flight actions: %w", err)
	}
	return dbx.RowsAffected(res)
}
