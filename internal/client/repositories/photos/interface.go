package photos

import (
	"context"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// Repository stores photo metadata. The binary lives at LocalRef until it is
// uploaded and RemoteURL is set.
type Repository interface {
	// Add inserts a photo for an unsealed job.
	Add(ctx context.Context, p *domain.Photo) error

	// Insert writes a photo row unconditionally. Used when restoring rescued data.
	Insert(ctx context.Context, p *domain.Photo) error

	Get(ctx context.Context, id string) (*domain.Photo, error)

	// ListByJob returns the photos of a job in capture order.
	ListByJob(ctx context.Context, jobID string) ([]domain.Photo, error)

	MarkUploaded(ctx context.Context, id, remoteURL, contentHash string) error
	SetSyncStatus(ctx context.Context, id string, s domain.SyncStatus) error
}
