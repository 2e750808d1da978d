package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/oriys/shardvm/internal/auth"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	issuer, err := auth.NewIssuer("", 0, true)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return &Server{issuer: issuer}
}

func TestAuthUnaryInterceptorRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	info := &grpc.UnaryServerInfo{FullMethod: "/shardvm.ShardVM/Run"}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	_, err := s.authUnaryInterceptor(context.Background(), nil, info, handler)
	if err == nil {
		t.Fatal("expected an error when no bearer token is present")
	}
}

func TestAuthUnaryInterceptorSkipsAuthenticateRPC(t *testing.T) {
	s := newTestServer(t)
	info := &grpc.UnaryServerInfo{FullMethod: "/shardvm.ShardVM/Authenticate"}
	called := false
	handler := func(ctx context.Context, req any) (any, error) {
		called = true
		return "ok", nil
	}

	if _, err := s.authUnaryInterceptor(context.Background(), nil, info, handler); err != nil {
		t.Fatalf("authUnaryInterceptor: %v", err)
	}
	if !called {
		t.Fatal("expected the handler to run for the exempted Authenticate RPC")
	}
}

func TestAuthUnaryInterceptorInjectsClaimsForValidToken(t *testing.T) {
	s := newTestServer(t)
	token, err := s.issuer.Generate("player-1", "alice")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	info := &grpc.UnaryServerInfo{FullMethod: "/shardvm.ShardVM/Run"}

	var gotClaims *auth.Claims
	handler := func(ctx context.Context, req any) (any, error) {
		c, ok := ClaimsFromContext(ctx)
		if ok {
			gotClaims = c
		}
		return "ok", nil
	}

	if _, err := s.authUnaryInterceptor(ctx, nil, info, handler); err != nil {
		t.Fatalf("authUnaryInterceptor: %v", err)
	}
	if gotClaims == nil || gotClaims.Username != "alice" {
		t.Fatalf("gotClaims = %+v, want Username=alice", gotClaims)
	}
}
