package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
)

// identityInterceptor attaches the caller's Identity when the "authorization"
// metadata carries a valid bearer token. It never rejects a call; methods
// that need an identity check for it themselves.
func (s *GRPCServer) identityInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			header = values[0]
		}
	}

	if header != "" {
		if id, ok := auth.Authenticate(s.verifier, header); ok {
			ctx = auth.WithIdentity(ctx, id)
		} else {
			s.logger.Debug(ctx, "bearer token rejected, continuing anonymously", "method", info.FullMethod)
		}
	}

	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "grpc request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"took", time.Since(start),
	)
	return resp, err
}
