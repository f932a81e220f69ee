package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const tenantKey ctxKey = "scheduler.tenant_id"

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(tenantKey)
	if val == nil {
		return uuid.Nil, false
	}
	id, ok := val.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

const trustedKey ctxKey = "scheduler.trusted"

// WithTrusted marks the caller as an authenticated internal channel whose
// bookings are confirmed immediately.
func WithTrusted(ctx context.Context) context.Context {
	return context.WithValue(ctx, trustedKey, true)
}

// IsTrusted reports whether WithTrusted was applied.
func IsTrusted(ctx context.Context) bool {
	v, _ := ctx.Value(trustedKey).(bool)
	return v
}
