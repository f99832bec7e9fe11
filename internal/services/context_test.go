package services_test

import (
	"context"
	"testing"

	"nftpin/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTokenPath(ctx, "nft.local.60.0x1.0xabc.0x1")
	ctx = services.WithOperation(ctx, "add")
	ctx = services.WithRequestID(ctx, "req-123")

	if path, ok := services.TokenPathFromContext(ctx); !ok || path != "nft.local.60.0x1.0xabc.0x1" {
		t.Fatalf("unexpected token path: %v %v", path, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "add" {
		t.Fatalf("unexpected operation: %v %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestOperationBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithOperation(ctx, "")
	if _, ok := services.OperationFromContext(ctx); ok {
		t.Fatal("expected no operation value")
	}
}
