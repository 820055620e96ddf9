package grpcx

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/httpx"
)

func TestRequestIDInterceptorUsesIncomingMetadata(t *testing.T) {
	interceptor := UnaryServerRequestIDInterceptor()
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDMetadataKey, "req-42"))

	var seen string
	_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	if seen != "req-42" {
		t.Fatalf("expected req-42, got %q", seen)
	}
}

func TestRequestIDInterceptorGeneratesID(t *testing.T) {
	interceptor := UnaryServerRequestIDInterceptor()
	var seen string
	_, _ = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, func(ctx context.Context, _ any) (any, error) {
		seen = httpx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if seen == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestLoggingInterceptorPassesThroughError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	interceptor := UnaryServerLoggingInterceptor(logger)
	want := context.Canceled
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}, func(context.Context, any) (any, error) {
		return nil, want
	})
	if err != want {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}
}
