// Package grpc serves the standard gRPC health protocol for AuthKeeper,
// reporting SERVING while the credential store answers.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the health service name clients may ask about besides "".
const ServiceName = "authkeeper.Auth"

// HealthChecker reports whether the service can handle requests.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type GRPCServer struct {
	grpc_health_v1.UnimplementedHealthServer
	address string
	checker HealthChecker
	logger  logging.Logger
}

func NewGRPCServer(address string, l logging.Logger, checker HealthChecker) *GRPCServer {
	return &GRPCServer{
		address: address,
		checker: checker,
		logger:  l.With("module", "grpc_server"),
	}
}

// Check implements grpc_health_v1.HealthServer.
func (s *GRPCServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if err := s.checker.Health(ctx); err != nil {
		s.logger.Warn(ctx, "health check failed", "error", err)
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return &grpc_health_v1.HealthCheckResponse{Status: st}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	grpc_health_v1.RegisterHealthServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
