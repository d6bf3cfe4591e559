// Package grpc serves the Credentials gRPC service and the standard health
// service.
package grpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// FreshTokenSource is the part of services.TokenService the server uses.
type FreshTokenSource interface {
	GetFresh(ctx context.Context, providerUserID string) (*models.ProviderToken, error)
}

type GRPCServer struct {
	address  string
	tokens   FreshTokenSource
	verifier auth.Verifier
	logger   logging.Logger
	health   *health.Server
}

func NewGRPCServer(address string, l logging.Logger, tokens FreshTokenSource, v auth.Verifier) *GRPCServer {
	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		tokens:   tokens,
		verifier: v,
		health:   health.NewServer(),
	}
}

// newServer builds a grpc.Server with interceptors and every service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.identityInterceptor))

	srv.RegisterService(&credentialsServiceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(CredentialsServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, listen)
}

func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	return srv.Serve(listen)
}
