package accesstokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, t *models.AccessToken) error
	Get(ctx context.Context, jti string) (*models.AccessToken, error)
	// RevokeForJob revokes every active token of the job and returns how
	// many were revoked.
	RevokeForJob(ctx context.Context, jobID string, at time.Time) (int64, error)
}
