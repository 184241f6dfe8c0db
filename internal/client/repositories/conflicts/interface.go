package conflicts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
)

// Repository stores conflict records. At most one unresolved record exists
// per job.
type Repository interface {
	// Insert reports false when the job already has an unresolved conflict.
	Insert(ctx context.Context, c *models.ConflictRecord) (bool, error)
	Get(ctx context.Context, id string) (*models.ConflictRecord, error)
	UnresolvedForJob(ctx context.Context, jobID string) (*models.ConflictRecord, error)
	ListUnresolved(ctx context.Context) ([]*models.ConflictRecord, error)
	CountUnresolved(ctx context.Context) (int, error)

	// MarkResolved reports false when the record was already resolved.
	MarkResolved(ctx context.Context, id string, res models.Resolution, at time.Time) (bool, error)
}
