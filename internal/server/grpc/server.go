// Package grpc hosts the gRPC endpoint in front of the identity services. It
// owns the listener, the health service and the bearer-token interceptor;
// application services are attached through registration callbacks.
package grpc

import (
	"context"
	"net"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Policy lists which methods skip authentication and which need the admin
// role. Entries are full method names ("/pkg.Service/Method") or service
// prefixes ending in "/". Every other method needs a valid bearer token.
type Policy struct {
	Public    []string
	AdminOnly []string
}

func matches(patterns []string, method string) bool {
	for _, p := range patterns {
		if p == method || (strings.HasSuffix(p, "/") && strings.HasPrefix(method, p)) {
			return true
		}
	}
	return false
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	verifier guard.TokenVerifier
	policy   Policy
	register []func(grpc.ServiceRegistrar)
	health   *health.Server
}

func NewGRPCServer(address string, l logging.Logger, v guard.TokenVerifier, p Policy, register ...func(grpc.ServiceRegistrar)) *GRPCServer {
	// health checks never carry a token
	p.Public = append(p.Public, "/"+healthpb.Health_ServiceDesc.ServiceName+"/")

	return &GRPCServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		verifier: v,
		policy:   p,
		register: register,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	for _, r := range s.register {
		r(srv)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
