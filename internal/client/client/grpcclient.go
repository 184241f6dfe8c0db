package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	deviceID    string
	deviceToken string
	conn        *grpc.ClientConn
	client      rpc.EvidenceSyncClient
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient creates a lazily connecting client. Extra dial options are
// appended after the defaults, so tests can swap the dialer.
func NewGRPCClient(endpointURL, deviceID, deviceToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, deviceID: deviceID, deviceToken: deviceToken}
	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.credentialsInterceptor),
	}, opts...)
	conn, err := grpc.NewClient(endpointURL, dial...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = rpc.NewEvidenceSyncClient(conn)
	return c, nil
}

func withDeviceCredentials(ctx context.Context, deviceID, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.DeviceIDHeaderName, deviceID)
	if token != "" {
		md.Set(common.DeviceTokenHeaderName, token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) credentialsInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = withDeviceCredentials(ctx, c.deviceID, c.deviceToken)
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return mapError(err)
	}
	if resp.Status != rpc.StatusOK {
		return fmt.Errorf("%w: server reported %q", common.ErrTransientNetwork, resp.Status)
	}
	return nil
}

func (c *GRPCClient) UpsertJob(ctx context.Context, req *rpc.UpsertJobRequest) (*rpc.UpsertJobResponse, error) {
	resp, err := c.client.UpsertJob(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (c *GRPCClient) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	resp, err := c.client.GetJob(ctx, &rpc.GetJobRequest{JobID: jobID})
	if err != nil {
		return nil, mapError(err)
	}
	if resp.Job == nil {
		return nil, common.ErrorNotFound
	}
	return resp.Job, nil
}

func (c *GRPCClient) UpsertContact(ctx context.Context, mutationID string, contact *domain.Contact) (time.Time, error) {
	resp, err := c.client.UpsertContact(ctx, &rpc.UpsertContactRequest{MutationID: mutationID, Contact: contact})
	if err != nil {
		return time.Time{}, mapError(err)
	}
	return resp.UpdatedAt, nil
}

func (c *GRPCClient) RequestPhotoUpload(ctx context.Context, req *rpc.RequestPhotoUploadRequest) (*rpc.RequestPhotoUploadResponse, error) {
	resp, err := c.client.RequestPhotoUpload(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}
	return resp, nil
}

func (c *GRPCClient) ConfirmPhotoUpload(ctx context.Context, storageKey string, p *domain.Photo) (string, error) {
	resp, err := c.client.ConfirmPhotoUpload(ctx, &rpc.ConfirmPhotoUploadRequest{StorageKey: storageKey, Photo: p})
	if err != nil {
		return "", mapError(err)
	}
	return resp.RemoteURL, nil
}

func (c *GRPCClient) RequestSeal(ctx context.Context, jobID, evidenceHash string, snapshot []byte) (*evidence.Seal, error) {
	resp, err := c.client.RequestSeal(ctx, &rpc.RequestSealRequest{JobID: jobID, EvidenceHash: evidenceHash, Snapshot: snapshot})
	if err != nil {
		return nil, mapError(err)
	}
	if resp.Seal == nil {
		return nil, errors.New("server returned no seal")
	}
	return resp.Seal, nil
}

func (c *GRPCClient) VerifySeal(ctx context.Context, jobID string) (evidence.VerifyResult, error) {
	resp, err := c.client.VerifySeal(ctx, &rpc.VerifySealRequest{JobID: jobID})
	if err != nil {
		return evidence.VerifyResult{}, mapError(err)
	}
	return resp.Result, nil
}

func (c *GRPCClient) IssueAccessToken(ctx context.Context, jobID string, ttl time.Duration) (string, time.Time, error) {
	resp, err := c.client.IssueAccessToken(ctx, &rpc.IssueAccessTokenRequest{JobID: jobID, TTLSeconds: int64(ttl / time.Second)})
	if err != nil {
		return "", time.Time{}, mapError(err)
	}
	return resp.Token, resp.ExpiresAt, nil
}

func (c *GRPCClient) RevokeAccessTokens(ctx context.Context, jobID string) (int64, error) {
	resp, err := c.client.RevokeAccessTokens(ctx, &rpc.RevokeAccessTokensRequest{JobID: jobID})
	if err != nil {
		return 0, mapError(err)
	}
	return resp.Revoked, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", common.ErrTransientNetwork, err)
	}
	msg := st.Message()
	switch st.Code() {
	case codes.Internal, codes.Unknown:
		if codecFailure(msg) {
			return common.NewValidationError(msg)
		}
		return fmt.Errorf("%w: %s", common.ErrTransientNetwork, msg)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %s", common.ErrTransientNetwork, msg)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %w: %s", common.ErrValidation, common.ErrorUnauthorized, msg)
	case codes.NotFound:
		return fmt.Errorf("%w: %w: %s", common.ErrValidation, common.ErrorNotFound, msg)
	case codes.FailedPrecondition:
		switch {
		case strings.Contains(msg, common.ErrAlreadySealed.Error()):
			return common.ErrAlreadySealed
		case strings.Contains(msg, common.ErrSealedJobImmutable.Error()):
			return common.ErrSealedJobImmutable
		}
		return common.NewValidationError(msg)
	case codes.Canceled:
		return context.Canceled
	default:
		return common.NewValidationError(msg)
	}
}

// codecFailure matches the Internal statuses grpc raises when a message cannot
// be encoded or decoded. They fail the same way on every attempt.
func codecFailure(msg string) bool {
	return strings.HasPrefix(msg, "grpc: error while marshaling") ||
		strings.HasPrefix(msg, "grpc: error unmarshalling") ||
		strings.HasPrefix(msg, "grpc: failed to unmarshal")
}
