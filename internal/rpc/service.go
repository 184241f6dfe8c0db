// Package rpc defines the EvidenceSync gRPC service shared by the device
// client and the server. Messages are plain Go structs carried with a JSON
// codec, so the service descriptor is declared by hand.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "fieldseal.v1.EvidenceSync"

// FullMethod returns the gRPC path for a method of the service.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type EvidenceSyncServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	UpsertJob(context.Context, *UpsertJobRequest) (*UpsertJobResponse, error)
	GetJob(context.Context, *GetJobRequest) (*GetJobResponse, error)
	UpsertContact(context.Context, *UpsertContactRequest) (*UpsertContactResponse, error)
	RequestPhotoUpload(context.Context, *RequestPhotoUploadRequest) (*RequestPhotoUploadResponse, error)
	ConfirmPhotoUpload(context.Context, *ConfirmPhotoUploadRequest) (*ConfirmPhotoUploadResponse, error)
	RequestSeal(context.Context, *RequestSealRequest) (*RequestSealResponse, error)
	VerifySeal(context.Context, *VerifySealRequest) (*VerifySealResponse, error)
	IssueAccessToken(context.Context, *IssueAccessTokenRequest) (*IssueAccessTokenResponse, error)
	RevokeAccessTokens(context.Context, *RevokeAccessTokensRequest) (*RevokeAccessTokensResponse, error)
}

// UnimplementedEvidenceSyncServer can be embedded to satisfy methods a
// server does not serve yet.
type UnimplementedEvidenceSyncServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedEvidenceSyncServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, unimplemented("Ping")
}
func (UnimplementedEvidenceSyncServer) UpsertJob(context.Context, *UpsertJobRequest) (*UpsertJobResponse, error) {
	return nil, unimplemented("UpsertJob")
}
func (UnimplementedEvidenceSyncServer) GetJob(context.Context, *GetJobRequest) (*GetJobResponse, error) {
	return nil, unimplemented("GetJob")
}
func (UnimplementedEvidenceSyncServer) UpsertContact(context.Context, *UpsertContactRequest) (*UpsertContactResponse, error) {
	return nil, unimplemented("UpsertContact")
}
func (UnimplementedEvidenceSyncServer) RequestPhotoUpload(context.Context, *RequestPhotoUploadRequest) (*RequestPhotoUploadResponse, error) {
	return nil, unimplemented("RequestPhotoUpload")
}
func (UnimplementedEvidenceSyncServer) ConfirmPhotoUpload(context.Context, *ConfirmPhotoUploadRequest) (*ConfirmPhotoUploadResponse, error) {
	return nil, unimplemented("ConfirmPhotoUpload")
}
func (UnimplementedEvidenceSyncServer) RequestSeal(context.Context, *RequestSealRequest) (*RequestSealResponse, error) {
	return nil, unimplemented("RequestSeal")
}
func (UnimplementedEvidenceSyncServer) VerifySeal(context.Context, *VerifySealRequest) (*VerifySealResponse, error) {
	return nil, unimplemented("VerifySeal")
}
func (UnimplementedEvidenceSyncServer) IssueAccessToken(context.Context, *IssueAccessTokenRequest) (*IssueAccessTokenResponse, error) {
	return nil, unimplemented("IssueAccessToken")
}
func (UnimplementedEvidenceSyncServer) RevokeAccessTokens(context.Context, *RevokeAccessTokensRequest) (*RevokeAccessTokensResponse, error) {
	return nil, unimplemented("RevokeAccessTokens")
}

func unary[Req, Resp any](method string, call func(EvidenceSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(EvidenceSyncServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EvidenceSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", EvidenceSyncServer.Ping),
		unary("UpsertJob", EvidenceSyncServer.UpsertJob),
		unary("GetJob", EvidenceSyncServer.GetJob),
		unary("UpsertContact", EvidenceSyncServer.UpsertContact),
		unary("RequestPhotoUpload", EvidenceSyncServer.RequestPhotoUpload),
		unary("ConfirmPhotoUpload", EvidenceSyncServer.ConfirmPhotoUpload),
		unary("RequestSeal", EvidenceSyncServer.RequestSeal),
		unary("VerifySeal", EvidenceSyncServer.VerifySeal),
		unary("IssueAccessToken", EvidenceSyncServer.IssueAccessToken),
		unary("RevokeAccessTokens", EvidenceSyncServer.RevokeAccessTokens),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldseal/v1/evidence_sync",
}

func RegisterEvidenceSyncServer(s grpc.ServiceRegistrar, srv EvidenceSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type EvidenceSyncClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	UpsertJob(ctx context.Context, in *UpsertJobRequest, opts ...grpc.CallOption) (*UpsertJobResponse, error)
	GetJob(ctx context.Context, in *GetJobRequest, opts ...grpc.CallOption) (*GetJobResponse, error)
	UpsertContact(ctx context.Context, in *UpsertContactRequest, opts ...grpc.CallOption) (*UpsertContactResponse, error)
	RequestPhotoUpload(ctx context.Context, in *RequestPhotoUploadRequest, opts ...grpc.CallOption) (*RequestPhotoUploadResponse, error)
	ConfirmPhotoUpload(ctx context.Context, in *ConfirmPhotoUploadRequest, opts ...grpc.CallOption) (*ConfirmPhotoUploadResponse, error)
	RequestSeal(ctx context.Context, in *RequestSealRequest, opts ...grpc.CallOption) (*RequestSealResponse, error)
	VerifySeal(ctx context.Context, in *VerifySealRequest, opts ...grpc.CallOption) (*VerifySealResponse, error)
	IssueAccessToken(ctx context.Context, in *IssueAccessTokenRequest, opts ...grpc.CallOption) (*IssueAccessTokenResponse, error)
	RevokeAccessTokens(ctx context.Context, in *RevokeAccessTokensRequest, opts ...grpc.CallOption) (*RevokeAccessTokensResponse, error)
}

type evidenceSyncClient struct {
	cc grpc.ClientConnInterface
}

func NewEvidenceSyncClient(cc grpc.ClientConnInterface) EvidenceSyncClient {
	return &evidenceSyncClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Codec)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *evidenceSyncClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, "Ping", in, opts)
}
func (c *evidenceSyncClient) UpsertJob(ctx context.Context, in *UpsertJobRequest, opts ...grpc.CallOption) (*UpsertJobResponse, error) {
	return invoke[UpsertJobResponse](ctx, c.cc, "UpsertJob", in, opts)
}
func (c *evidenceSyncClient) GetJob(ctx context.Context, in *GetJobRequest, opts ...grpc.CallOption) (*GetJobResponse, error) {
	return invoke[GetJobResponse](ctx, c.cc, "GetJob", in, opts)
}
func (c *evidenceSyncClient) UpsertContact(ctx context.Context, in *UpsertContactRequest, opts ...grpc.CallOption) (*UpsertContactResponse, error) {
	return invoke[UpsertContactResponse](ctx, c.cc, "UpsertContact", in, opts)
}
func (c *evidenceSyncClient) RequestPhotoUpload(ctx context.Context, in *RequestPhotoUploadRequest, opts ...grpc.CallOption) (*RequestPhotoUploadResponse, error) {
	return invoke[RequestPhotoUploadResponse](ctx, c.cc, "RequestPhotoUpload", in, opts)
}
func (c *evidenceSyncClient) ConfirmPhotoUpload(ctx context.Context, in *ConfirmPhotoUploadRequest, opts ...grpc.CallOption) (*ConfirmPhotoUploadResponse, error) {
	return invoke[ConfirmPhotoUploadResponse](ctx, c.cc, "ConfirmPhotoUpload", in, opts)
}
func (c *evidenceSyncClient) RequestSeal(ctx context.Context, in *RequestSealRequest, opts ...grpc.CallOption) (*RequestSealResponse, error) {
	return invoke[RequestSealResponse](ctx, c.cc, "RequestSeal", in, opts)
}
func (c *evidenceSyncClient) VerifySeal(ctx context.Context, in *VerifySealRequest, opts ...grpc.CallOption) (*VerifySealResponse, error) {
	return invoke[VerifySealResponse](ctx, c.cc, "VerifySeal", in, opts)
}
func (c *evidenceSyncClient) IssueAccessToken(ctx context.Context, in *IssueAccessTokenRequest, opts ...grpc.CallOption) (*IssueAccessTokenResponse, error) {
	return invoke[IssueAccessTokenResponse](ctx, c.cc, "IssueAccessToken", in, opts)
}
func (c *evidenceSyncClient) RevokeAccessTokens(ctx context.Context, in *RevokeAccessTokensRequest, opts ...grpc.CallOption) (*RevokeAccessTokensResponse, error) {
	return invoke[RevokeAccessTokensResponse](ctx, c.cc, "RevokeAccessTokens", in, opts)
}
