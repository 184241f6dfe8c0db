package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
)

// Client is the remote backend as seen from a device.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	UpsertJob(ctx context.Context, req *rpc.UpsertJobRequest) (*rpc.UpsertJobResponse, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	UpsertContact(ctx context.Context, mutationID string, c *domain.Contact) (time.Time, error)
	RequestPhotoUpload(ctx context.Context, req *rpc.RequestPhotoUploadRequest) (*rpc.RequestPhotoUploadResponse, error)
	ConfirmPhotoUpload(ctx context.Context, storageKey string, p *domain.Photo) (string, error)
	RequestSeal(ctx context.Context, jobID, evidenceHash string, snapshot []byte) (*evidence.Seal, error)
	VerifySeal(ctx context.Context, jobID string) (evidence.VerifyResult, error)
	IssueAccessToken(ctx context.Context, jobID string, ttl time.Duration) (string, time.Time, error)
	RevokeAccessTokens(ctx context.Context, jobID string) (int64, error)
}
