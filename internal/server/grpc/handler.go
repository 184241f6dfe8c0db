package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
)

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return auth.Principal{}, common.ErrorUnauthorized
	}
	return p, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *rpc.PingRequest) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: rpc.StatusOK}, nil
}

func (s *GRPCServer) UpsertJob(ctx context.Context, req *rpc.UpsertJobRequest) (*rpc.UpsertJobResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.sync.UpsertJob(ctx, p, req.MutationID, req.Job, req.BaseVersion, req.ResolvesConflict)
	if err != nil {
		return nil, err
	}
	if res.Conflict {
		s.logger.Info(ctx, "job conflict", "job_id", req.Job.ID, "base_version", req.BaseVersion, "version", res.Version)
	}
	return &rpc.UpsertJobResponse{Applied: res.Applied, Version: res.Version, Conflict: res.Conflict, Remote: res.Remote}, nil
}

func (s *GRPCServer) GetJob(ctx context.Context, req *rpc.GetJobRequest) (*rpc.GetJobResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	j, err := s.sync.GetJob(ctx, p, req.JobID)
	if err != nil {
		return nil, err
	}
	return &rpc.GetJobResponse{Job: j}, nil
}

func (s *GRPCServer) UpsertContact(ctx context.Context, req *rpc.UpsertContactRequest) (*rpc.UpsertContactResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	at, err := s.sync.UpsertContact(ctx, p, req.MutationID, req.Contact)
	if err != nil {
		return nil, err
	}
	return &rpc.UpsertContactResponse{Applied: true, UpdatedAt: at}, nil
}

func (s *GRPCServer) RequestPhotoUpload(ctx context.Context, req *rpc.RequestPhotoUploadRequest) (*rpc.RequestPhotoUploadResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	t, err := s.photos.RequestUpload(ctx, p, req.JobID, req.PhotoID, req.ContentHash, req.ContentType)
	if err != nil {
		return nil, err
	}
	return &rpc.RequestPhotoUploadResponse{StorageKey: t.StorageKey, UploadURL: t.URL, AlreadyUploaded: t.AlreadyUploaded}, nil
}

func (s *GRPCServer) ConfirmPhotoUpload(ctx context.Context, req *rpc.ConfirmPhotoUploadRequest) (*rpc.ConfirmPhotoUploadResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.photos.ConfirmUpload(ctx, p, req.StorageKey, req.Photo)
	if err != nil {
		return nil, err
	}
	return &rpc.ConfirmPhotoUploadResponse{RemoteURL: url}, nil
}

func (s *GRPCServer) RequestSeal(ctx context.Context, req *rpc.RequestSealRequest) (*rpc.RequestSealResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	seal, err := s.seals.RequestSeal(ctx, p, req.JobID, req.EvidenceHash, req.Snapshot)
	if err != nil {
		return nil, err
	}
	return &rpc.RequestSealResponse{Seal: seal}, nil
}

func (s *GRPCServer) VerifySeal(ctx context.Context, req *rpc.VerifySealRequest) (*rpc.VerifySealResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.seals.VerifySeal(ctx, p, req.JobID)
	if err != nil {
		return nil, err
	}
	return &rpc.VerifySealResponse{Result: res}, nil
}

func (s *GRPCServer) IssueAccessToken(ctx context.Context, req *rpc.IssueAccessTokenRequest) (*rpc.IssueAccessTokenResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if req.TTLSeconds < 0 {
		return nil, common.NewValidationError("ttl must not be negative")
	}
	token, exp, err := s.tokens.IssueAccessToken(ctx, p, req.JobID, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	return &rpc.IssueAccessTokenResponse{Token: token, ExpiresAt: exp}, nil
}

func (s *GRPCServer) RevokeAccessTokens(ctx context.Context, req *rpc.RevokeAccessTokensRequest) (*rpc.RevokeAccessTokensResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.tokens.RevokeAccessTokens(ctx, p, req.JobID)
	if err != nil {
		return nil, err
	}
	return &rpc.RevokeAccessTokensResponse{Revoked: n}, nil
}
