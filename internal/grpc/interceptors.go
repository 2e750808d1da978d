package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oriys/shardvm/internal/auth"
	"github.com/oriys/shardvm/internal/logging"
)

type claimsKey struct{}

// ClaimsFromContext returns the caller's validated claims, if an auth
// interceptor placed them there.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// methodsSkippingAuth lists RPCs reachable before a client has a token.
var methodsSkippingAuth = map[string]bool{
	"/shardvm.ShardVM/Authenticate": true,
}

func bearerFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	const prefix = "Bearer "
	v := vals[0]
	if len(v) > len(prefix) && v[:len(prefix)] == prefix {
		return v[len(prefix):]
	}
	return v
}

func (s *Server) authUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if methodsSkippingAuth[info.FullMethod] {
		return handler(ctx, req)
	}
	token := bearerFromContext(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	claims, err := s.issuer.Validate(token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return handler(context.WithValue(ctx, claimsKey{}, claims), req)
}

type claimsServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *claimsServerStream) Context() context.Context { return w.ctx }

func (s *Server) authStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if methodsSkippingAuth[info.FullMethod] {
		return handler(srv, ss)
	}
	token := bearerFromContext(ss.Context())
	if token == "" {
		return status.Error(codes.Unauthenticated, "missing bearer token")
	}
	claims, err := s.issuer.Validate(token)
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	ctx := context.WithValue(ss.Context(), claimsKey{}, claims)
	return handler(srv, &claimsServerStream{ServerStream: ss, ctx: ctx})
}

func loggingUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		logging.Op().Error("grpc request failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	} else {
		logging.Op().Info("grpc request completed", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

func loggingStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	logging.Op().Info("grpc stream started", "method", info.FullMethod)
	err := handler(srv, ss)
	if err != nil {
		logging.Op().Error("grpc stream ended", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	} else {
		logging.Op().Info("grpc stream ended", "method", info.FullMethod, "duration", time.Since(start))
	}
	return err
}
