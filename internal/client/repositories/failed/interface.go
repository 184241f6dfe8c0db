package failed

import (
	"context"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
)

// Repository holds escalated actions until an operator retries or
// acknowledges them.
type Repository interface {
	// Insert records an escalation. It reports false when the action id is
	// already present, so an action is escalated at most once.
	Insert(ctx context.Context, f *models.FailedAction) (bool, error)
	Get(ctx context.Context, id string) (*models.FailedAction, error)
	List(ctx context.Context, includeAcknowledged bool) ([]*models.FailedAction, error)
	Acknowledge(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountOpen(ctx context.Context) (int, error)
	// CountByEntity includes acknowledged escalations: they still hold
	// their lane until retried.
	CountByEntity(ctx context.Context, kind models.EntityKind, entityID string) (int, error)
}
