package grpc

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if matches(s.policy.Public, info.FullMethod) {
		return handler(ctx, req)
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
			header = values[0]
		}
	}

	claims, err := guard.Authorize(s.verifier, header, matches(s.policy.AdminOnly, info.FullMethod))
	if err != nil {
		s.logger.Debug(ctx, "request rejected", "method", info.FullMethod, "error", err)
		return nil, StatusFromError(err)
	}

	return handler(guard.WithClaims(ctx, claims), req)
}
