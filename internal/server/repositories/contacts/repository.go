package contacts

import (
	"context"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.StoredContact, error)
	// Upsert reports false when mutationID was already applied.
	Upsert(ctx context.Context, c *models.StoredContact) (bool, error)
	ListByWorkspace(ctx context.Context, workspaceID string, kind domain.ContactKind) ([]*models.StoredContact, error)
}
