package jobs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// Repository persists jobs on the device. Returned jobs carry their photos.
type Repository interface {
	// Save inserts or replaces a job row. Replacing a sealed job fails with
	// common.ErrSealedJobImmutable.
	Save(ctx context.Context, j *domain.Job) error

	// Restore inserts a job, sealed fields and photos included, into an
	// empty store.
	Restore(ctx context.Context, j *domain.Job) error

	Get(ctx context.Context, id string) (*domain.Job, error)
	ListByWorkspace(ctx context.Context, workspaceID string, includeArchived bool) ([]*domain.Job, error)
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)
	ListAll(ctx context.Context) ([]*domain.Job, error)

	// MarkSealed sets the seal fields once; a second call returns
	// common.ErrAlreadySealed.
	MarkSealed(ctx context.Context, id, evidenceHash string, sealedAt time.Time) error

	SetSyncStatus(ctx context.Context, id string, s domain.SyncStatus) error
	SetBaseVersion(ctx context.Context, id string, version int64) error

	ListArchivable(ctx context.Context, sealedBefore time.Time) ([]string, error)
	MarkArchived(ctx context.Context, id string, at time.Time) (bool, error)
}
