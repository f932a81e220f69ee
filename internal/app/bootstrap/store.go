package bootstrap

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/wolfman30/clinic-scheduler/internal/admin"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/store/memstore"
	"github.com/wolfman30/clinic-scheduler/internal/store/postgres"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// Stores bundles the persistence handles a binary needs. Close releases
// every connection that was opened.
type Stores struct {
	Scopes      scheduling.Scopes
	Tenants     scheduling.TenantDirectory
	Admin       *admin.Store
	Credentials integrations.Source

	closers []func()
}

// Close releases the underlying connections.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// ConnectPostgresPool opens and pings a pgx pool. It returns nil for an
// empty URL or when the database is unreachable.
func ConnectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// OpenAdminDB opens the database/sql handle for platform-wide reads. It
// connects with the admin role, which bypasses row-level security.
func OpenAdminDB(ctx context.Context, databaseURL string, logger *logging.Logger) *sql.DB {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Error("failed to open admin database", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("failed to ping admin database", "error", err)
		_ = db.Close()
		return nil
	}
	return db
}

// BuildStores connects Postgres when DATABASE_URL is set and otherwise
// falls back to the in-memory store, which only suits local development.
func BuildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *Stores {
	if logger == nil {
		logger = logging.Default()
	}
	out := &Stores{Credentials: integrations.StaticSource{}}

	if pool := ConnectPostgresPool(ctx, cfg.DatabaseURL, logger); pool != nil {
		pg := postgres.New(pool, logger)
		out.Scopes, out.Tenants = pg, pg
		out.closers = append(out.closers, pool.Close)
	} else {
		if cfg.Env == "production" {
			logger.Warn("DATABASE_URL not usable in production; bookings will not persist")
		}
		mem := memstore.New()
		out.Scopes, out.Tenants = mem, mem
		logger.Info("using in-memory scheduling store")
	}

	adminURL := cfg.AdminDBURL
	if adminURL == "" {
		adminURL = cfg.DatabaseURL
	}
	if db := OpenAdminDB(ctx, adminURL, logger); db != nil {
		out.Admin = admin.NewStore(db)
		out.Credentials = out.Admin
		out.closers = append(out.closers, func() { _ = db.Close() })
	}
	return out
}
