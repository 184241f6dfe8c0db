// Package jobs declares the server-side repository contract for the
// authoritative job records.
package jobs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the job does not exist.
	Get(ctx context.Context, id string) (*models.StoredJob, error)
	// GetForUpdate is Get with a row lock; call it inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*models.StoredJob, error)
	Insert(ctx context.Context, j *models.StoredJob) error
	// Update writes j when the stored version still equals prevVersion,
	// and returns common.ErrVersionConflict otherwise.
	Update(ctx context.Context, j *models.StoredJob, prevVersion int64) error
	// MarkSealed returns common.ErrAlreadySealed when the job has a seal.
	MarkSealed(ctx context.Context, id, evidenceHash string, at time.Time) (int64, error)
	ListByWorkspace(ctx context.Context, workspaceID string, includeArchived bool) ([]*models.StoredJob, error)

	ListArchivable(ctx context.Context, sealedBefore time.Time) ([]string, error)
	MarkArchived(ctx context.Context, jobID string, at time.Time) (bool, error)
}
