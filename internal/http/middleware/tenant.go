package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// TenantHeader selects the tenant on the internal API.
const TenantHeader = "X-Tenant-Id"

const tenantSinkKey contextKey = "scheduler.tenantSink"

func withTenantSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, tenantSinkKey, sink)
}

// SlugResolver looks tenants up by public slug. The Redis tenant cache
// satisfies it.
type SlugResolver interface {
	GetTenantBySlug(ctx context.Context, slug string) (*scheduling.Tenant, error)
}

// RequireTenantHeader puts the X-Tenant-Id tenant into the request context.
func RequireTenantHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(TenantHeader))
		if raw == "" {
			httperr.BadRequest(w, "missing "+TenantHeader)
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			httperr.BadRequest(w, TenantHeader+" must be a uuid")
			return
		}
		r = r.WithContext(tenancy.WithTenantID(r.Context(), tenantID))
		recordTenant(r)
		next.ServeHTTP(w, r)
	})
}

// ResolveTenantSlug maps the {tenantSlug} route parameter to a tenant id.
func ResolveTenantSlug(resolver SlugResolver, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := strings.TrimSpace(chi.URLParam(r, "tenantSlug"))
			if slug == "" {
				httperr.BadRequest(w, "tenant slug is required")
				return
			}
			tenant, err := resolver.GetTenantBySlug(r.Context(), slug)
			if err != nil {
				httperr.Error(w, logger, err)
				return
			}
			r = r.WithContext(tenancy.WithTenantID(r.Context(), tenant.ID))
			recordTenant(r)
			next.ServeHTTP(w, r)
		})
	}
}
