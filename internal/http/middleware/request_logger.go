package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// RequestLogger emits one structured log line per HTTP request.
func RequestLogger(logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			// tenant middleware runs deeper in the chain; read the id from
			// the request it hands down.
			var tenantID string
			next.ServeHTTP(ww, r.WithContext(withTenantSink(r.Context(), &tenantID)))

			reqID := chimw.GetReqID(r.Context())
			if reqID == "" {
				reqID = r.Header.Get("X-Request-ID")
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", reqID,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if tenantID != "" {
				attrs = append(attrs, "tenant_id", tenantID)
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Error("request completed", attrs...)
				return
			}
			logger.Info("request completed", attrs...)
		})
	}
}

// recordTenant copies the resolved tenant id into the logger's sink.
func recordTenant(r *http.Request) {
	sink, ok := r.Context().Value(tenantSinkKey).(*string)
	if !ok {
		return
	}
	if id, ok := tenancy.TenantIDFromContext(r.Context()); ok {
		*sink = id.String()
	}
}
