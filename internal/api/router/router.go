package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-scheduler/internal/admin"
	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/availability"
	httpmiddleware "github.com/wolfman30/clinic-scheduler/internal/http/middleware"
	"github.com/wolfman30/clinic-scheduler/internal/jobs"
	"github.com/wolfman30/clinic-scheduler/internal/waitlist"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger        *logging.Logger
	Availability  *availability.Handler
	Appointments  *appointments.Handler
	Waitlist      *waitlist.Handler
	Jobs          *jobs.Handler
	Admin         *admin.Handler
	TenantsBySlug httpmiddleware.SlugResolver

	ChannelAuthSecret  string
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	PublicRateLimitRPS float64
	PublicRateBurst    int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public booking page: tenant from slug, rate limited per client IP.
	if cfg.TenantsBySlug != nil {
		r.Route("/v1/public/{tenantSlug}", func(pub chi.Router) {
			if cfg.PublicRateLimitRPS > 0 {
				pub.Use(httpmiddleware.RateLimit(cfg.PublicRateLimitRPS, cfg.PublicRateBurst))
			}
			pub.Use(httpmiddleware.ResolveTenantSlug(cfg.TenantsBySlug, cfg.Logger))
			if cfg.Availability != nil {
				pub.Mount("/availability", cfg.Availability.Routes())
			}
			if cfg.Appointments != nil {
				pub.Post("/appointments", cfg.Appointments.Create)
			}
		})
	}

	// Internal booking channels: channel JWT plus X-Tenant-Id.
	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpmiddleware.ChannelJWT(cfg.ChannelAuthSecret))
		v1.Use(httpmiddleware.RequireTenantHeader)
		if cfg.Availability != nil {
			v1.Mount("/availability", cfg.Availability.Routes())
		}
		if cfg.Appointments != nil {
			v1.Mount("/appointments", cfg.Appointments.Routes())
		}
		if cfg.Waitlist != nil {
			v1.Mount("/waitlist", cfg.Waitlist.Routes())
		}
	})

	if cfg.Jobs != nil {
		r.Mount("/internal/jobs", cfg.Jobs.Routes())
	}

	if cfg.Admin != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(a chi.Router) {
			a.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			a.Mount("/", cfg.Admin.Routes())
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	httperr.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
