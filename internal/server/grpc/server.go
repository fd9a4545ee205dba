// Package grpc exposes the session service over gRPC using the protowire
// codec from internal/api.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/sessionkeeper/internal/api"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/transport"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	api.UnimplementedSessionKeeperServer
	address  string
	sessions transport.SessionService
	limiter  transport.RateLimiter
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, sessions transport.SessionService, limiter transport.RateLimiter) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		sessions: sessions,
		limiter:  limiter,
	}
}

// newServer builds a grpc.Server with the service and its interceptors.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.correlationInterceptor, s.accessTokenInterceptor))
	api.RegisterSessionKeeperServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
