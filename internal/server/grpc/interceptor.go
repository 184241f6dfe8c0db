package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var publicMethods = map[string]bool{
	rpc.FullMethod("Ping"): true,
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// deviceAuthInterceptor resolves the device token into an auth.Principal.
// Ping stays open so devices can check connectivity before enrolment.
func (s *GRPCServer) deviceAuthInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	token := firstValue(md, common.DeviceTokenHeaderName)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing device token")
	}
	p, err := s.tokens.Authenticate(token, firstValue(md, common.DeviceIDHeaderName))
	if err != nil {
		return nil, err
	}
	return handler(auth.WithPrincipal(ctx, p), req)
}

// errorInterceptor translates service errors into gRPC status codes.
func (s *GRPCServer) errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	st := toStatus(err)
	if st.Code() == codes.Internal {
		s.logger.Error(ctx, "request failed", "method", info.FullMethod, "error", err)
	} else {
		s.logger.Debug(ctx, "request rejected", "method", info.FullMethod, "code", st.Code().String(), "error", err)
	}
	return nil, st.Err()
}

func toStatus(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	switch {
	case errors.Is(err, common.ErrValidation),
		errors.Is(err, common.ErrHashMismatch),
		errors.Is(err, common.ErrInvalidSignature):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.New(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrAlreadySealed),
		errors.Is(err, common.ErrSealedJobImmutable):
		return status.New(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrVersionConflict):
		return status.New(codes.Aborted, err.Error())
	case errors.Is(err, common.ErrTransientNetwork):
		return status.New(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	}
	return status.New(codes.Internal, "internal error")
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
	return resp, err
}
