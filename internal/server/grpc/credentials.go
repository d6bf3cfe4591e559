package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
)

const (
	CredentialsServiceName    = "tokenkeeper.v1.Credentials"
	GetFreshAccessTokenMethod = "/tokenkeeper.v1.Credentials/GetFreshAccessToken"
)

// CredentialsServer hands the calling user's provider access token to
// backend clients.
type CredentialsServer interface {
	GetFreshAccessToken(ctx context.Context, in *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// The service uses well-known types only, so the descriptor is declared by
// hand instead of generated.
var credentialsServiceDesc = grpc.ServiceDesc{
	ServiceName: CredentialsServiceName,
	HandlerType: (*CredentialsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetFreshAccessToken",
			Handler:    getFreshAccessTokenHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tokenkeeper/v1/credentials.proto",
}

func getFreshAccessTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CredentialsServer).GetFreshAccessToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetFreshAccessTokenMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CredentialsServer).GetFreshAccessToken(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// CredentialsClient is the client side of the Credentials service.
type CredentialsClient struct {
	cc grpc.ClientConnInterface
}

func NewCredentialsClient(cc grpc.ClientConnInterface) *CredentialsClient {
	return &CredentialsClient{cc: cc}
}

func (c *CredentialsClient) GetFreshAccessToken(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, GetFreshAccessTokenMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (s *GRPCServer) GetFreshAccessToken(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	tok, err := s.tokens.GetFresh(ctx, id.SubjectID)
	if err != nil {
		return nil, s.toStatus(ctx, id.SubjectID, err)
	}
	return wrapperspb.String(tok.AccessToken), nil
}

func (s *GRPCServer) toStatus(ctx context.Context, subject string, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "no provider credentials for user")
	case errors.Is(err, common.ErrRefreshFailed):
		return status.Error(codes.Unavailable, "provider token refresh failed")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error(ctx, "get fresh access token failed", "provider_user_id", subject, "error", err)
	return status.Error(codes.Internal, "internal error")
}
