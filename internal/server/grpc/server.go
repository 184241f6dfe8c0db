package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"github.com/dmitrijs2005/fieldseal/internal/server/metrics"
	"github.com/dmitrijs2005/fieldseal/internal/server/services"
	"google.golang.org/grpc"
)

type syncSvc interface {
	UpsertJob(ctx context.Context, p auth.Principal, mutationID string, j *domain.Job, baseVersion int64, resolvesConflict bool) (*services.UpsertResult, error)
	GetJob(ctx context.Context, p auth.Principal, jobID string) (*domain.Job, error)
	UpsertContact(ctx context.Context, p auth.Principal, mutationID string, c *domain.Contact) (time.Time, error)
}

type photoSvc interface {
	RequestUpload(ctx context.Context, p auth.Principal, jobID, photoID, contentHash, contentType string) (*services.UploadTicket, error)
	ConfirmUpload(ctx context.Context, p auth.Principal, storageKey string, photo *domain.Photo) (string, error)
}

type sealSvc interface {
	RequestSeal(ctx context.Context, p auth.Principal, jobID, evidenceHash string, snapshot []byte) (*evidence.Seal, error)
	VerifySeal(ctx context.Context, p auth.Principal, jobID string) (evidence.VerifyResult, error)
}

type tokenSvc interface {
	Authenticate(token, deviceID string) (auth.Principal, error)
	IssueAccessToken(ctx context.Context, p auth.Principal, jobID string, ttl time.Duration) (string, time.Time, error)
	RevokeAccessTokens(ctx context.Context, p auth.Principal, jobID string) (int64, error)
}

// Services are the business operations behind the EvidenceSync methods.
type Services struct {
	Sync   syncSvc
	Photos photoSvc
	Seals  sealSvc
	Tokens tokenSvc
}

type GRPCServer struct {
	rpc.UnimplementedEvidenceSyncServer
	address string
	sync    syncSvc
	photos  photoSvc
	seals   sealSvc
	tokens  tokenSvc
	metrics *metrics.Metrics
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, svc Services, mt *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		sync:    svc.Sync,
		photos:  svc.Photos,
		seals:   svc.Seals,
		tokens:  svc.Tokens,
		metrics: mt,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.metricsInterceptor,
		s.errorInterceptor,
		s.deviceAuthInterceptor,
	))
	rpc.RegisterEvidenceSyncServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis and stops gracefully when ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
