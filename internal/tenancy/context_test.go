package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithTenantIDAndTenantIDFromContext(t *testing.T) {
	id := uuid.New()
	ctx := WithTenantID(context.Background(), id)

	got, ok := TenantIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected tenant id to be present")
	}
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
}

func TestTenantIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected missing tenant id to return false")
	}

	ctx = context.WithValue(ctx, tenantKey, "not-a-uuid")
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected non-uuid tenant id to return false")
	}

	ctx = WithTenantID(context.Background(), uuid.Nil)
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected nil tenant id to return false")
	}
}

func TestTrustedFlag(t *testing.T) {
	if IsTrusted(context.Background()) {
		t.Fatalf("expected untrusted by default")
	}
	if !IsTrusted(WithTrusted(context.Background())) {
		t.Fatalf("expected trusted after WithTrusted")
	}
}
