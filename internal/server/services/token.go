package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenService issues one-time share links and the device tokens used by
// the sync API.
type TokenService struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	secret         []byte
	deviceValidity time.Duration
	shareValidity  time.Duration
	now            func() time.Time
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, secret []byte, deviceValidity, shareValidity time.Duration) *TokenService {
	return &TokenService{
		db:             db,
		repomanager:    m,
		secret:         secret,
		deviceValidity: deviceValidity,
		shareValidity:  shareValidity,
		now:            time.Now,
	}
}

func (s *TokenService) IssueDeviceToken(deviceID, workspaceID string) (string, error) {
	if deviceID == "" || workspaceID == "" {
		return "", common.NewValidationError("device id and workspace id are required")
	}
	return auth.GenerateDeviceToken(deviceID, workspaceID, s.secret, s.deviceValidity)
}

// Authenticate resolves a device token into the caller's principal. The
// device id sent alongside the token must match the one it was issued to.
func (s *TokenService) Authenticate(token, deviceID string) (auth.Principal, error) {
	claims, err := auth.ParseDeviceToken(token, s.secret)
	if err != nil {
		return auth.Principal{}, err
	}
	if deviceID != "" && deviceID != claims.DeviceID {
		return auth.Principal{}, common.ErrorUnauthorized
	}
	return auth.Principal{DeviceID: claims.DeviceID, WorkspaceID: claims.WorkspaceID}, nil
}

// IssueAccessToken creates a share link for a job that is not sealed. A
// non-positive ttl uses the configured share link validity.
func (s *TokenService) IssueAccessToken(ctx context.Context, p auth.Principal, jobID string, ttl time.Duration) (string, time.Time, error) {
	job, err := s.repomanager.Jobs(s.db).Get(ctx, jobID)
	if err != nil {
		return "", time.Time{}, err
	}
	if job.Job.WorkspaceID != p.WorkspaceID {
		return "", time.Time{}, common.ErrorNotFound
	}
	if job.Job.Sealed() {
		return "", time.Time{}, common.ErrSealedJobImmutable
	}
	if ttl <= 0 {
		ttl = s.shareValidity
	}

	now := s.now().UTC()
	rec := &models.AccessToken{
		JTI:         uuid.NewString(),
		JobID:       jobID,
		WorkspaceID: p.WorkspaceID,
		IssuedBy:    p.DeviceID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	token, err := auth.GenerateShareToken(rec.JTI, jobID, p.WorkspaceID, s.secret, rec.ExpiresAt)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.repomanager.AccessTokens(s.db).Insert(ctx, rec); err != nil {
		return "", time.Time{}, err
	}
	return token, rec.ExpiresAt, nil
}

func (s *TokenService) RevokeAccessTokens(ctx context.Context, p auth.Principal, jobID string) (int64, error) {
	job, err := s.repomanager.Jobs(s.db).Get(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Job.WorkspaceID != p.WorkspaceID {
		return 0, common.ErrorNotFound
	}
	return s.repomanager.AccessTokens(s.db).RevokeForJob(ctx, jobID, s.now())
}

// ResolveShare returns the job behind an active share token.
func (s *TokenService) ResolveShare(ctx context.Context, token string) (*domain.Job, error) {
	claims, err := auth.ParseShareToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	rec, err := s.repomanager.AccessTokens(s.db).Get(ctx, claims.ID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !rec.Active(s.now()) || rec.JobID != claims.Subject {
		return nil, common.ErrInvalidToken
	}
	job, err := s.repomanager.Jobs(s.db).Get(ctx, rec.JobID)
	if err != nil {
		return nil, err
	}
	return job.View(), nil
}
