package photos

import (
	"context"

	"github.com/dmitrijs2005/fieldseal/internal/server/models"
)

type Repository interface {
	// Upsert registers photo metadata. A changed content hash resets the
	// uploaded flag so the new bytes must be confirmed again.
	Upsert(ctx context.Context, p *models.PhotoObject) error
	Get(ctx context.Context, id string) (*models.PhotoObject, error)
	MarkUploaded(ctx context.Context, id string) error
	ListByJob(ctx context.Context, jobID string) ([]*models.PhotoObject, error)
	// CountUploaded returns the number of confirmed photos per job.
	CountUploaded(ctx context.Context, jobIDs []string) (map[string]int, error)
}
