package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/common"
)

// ShareService manages time-limited external links to a job. Links are
// issued by the backend and require connectivity.
type ShareService interface {
	Issue(ctx context.Context, jobID string, ttl time.Duration) (string, time.Time, error)
	Revoke(ctx context.Context, jobID string) (int64, error)
}

type shareService struct {
	store  syncqueue.Store
	remote client.Client
}

func NewShareService(s syncqueue.Store, remote client.Client) ShareService {
	return &shareService{store: s, remote: remote}
}

func (s *shareService) Issue(ctx context.Context, jobID string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, common.NewValidationError("link lifetime must be positive")
	}
	j, err := s.store.Repos().Jobs.Get(ctx, jobID)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := j.EnsureMutable(); err != nil {
		return "", time.Time{}, err
	}
	return s.remote.IssueAccessToken(ctx, jobID, ttl)
}

func (s *shareService) Revoke(ctx context.Context, jobID string) (int64, error) {
	return s.remote.RevokeAccessTokens(ctx, jobID)
}
