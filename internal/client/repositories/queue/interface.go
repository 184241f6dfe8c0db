package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
)

// Repository is the durable action queue. Actions are returned in insertion
// order (seq).
type Repository interface {
	// Insert appends an action and fills in its Seq.
	Insert(ctx context.Context, a *models.QueueAction) error
	// InsertAhead enqueues a before every action queued for its entity.
	InsertAhead(ctx context.Context, a *models.QueueAction) error
	Get(ctx context.Context, id string) (*models.QueueAction, error)
	List(ctx context.Context) ([]*models.QueueAction, error)
	ListByEntity(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.QueueAction, error)

	// Update persists state, retry count, backoff and last error.
	Update(ctx context.Context, a *models.QueueAction) error
	Delete(ctx context.Context, id string) error
	DeleteByEntity(ctx context.Context, kind models.EntityKind, entityID string) (int64, error)

	Count(ctx context.Context) (int, error)
	CountByEntity(ctx context.Context, kind models.EntityKind, entityID string) (int, error)
	HasType(ctx context.Context, t models.ActionType, entityID string) (bool, error)

	// RecoverInFlight moves actions left InFlight by a crash to Retrying.
	RecoverInFlight(ctx context.Context, now time.Time) (int64, error)
}
