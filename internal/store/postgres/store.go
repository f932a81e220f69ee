// Package postgres implements the scheduling store contracts on pgx.
//
// Every tenant-bound call runs in its own transaction that first sets
// app.tenant_id for row-level security and then filters by tenant_id
// explicitly. Bookings run at SERIALIZABLE isolation.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querier is satisfied by both DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlstateSerializationFailure = "40001"
	sqlstateExclusionViolation   = "23P01"

	setTenantSQL = `SELECT set_config('app.tenant_id', $1, true)`
)

var (
	readTx    = pgx.TxOptions{AccessMode: pgx.ReadOnly}
	writeTx   = pgx.TxOptions{}
	bookingTx = pgx.TxOptions{IsoLevel: pgx.Serializable}
)

// Store hands out tenant-bound accessors over a pgx pool.
type Store struct {
	db     DB
	logger *logging.Logger
}

// New creates a store over pool.
func New(pool *pgxpool.Pool, logger *logging.Logger) *Store {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return NewWithDB(pool, logger)
}

// NewWithDB allows injecting a mock database for testing.
func NewWithDB(db DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{db: db, logger: logger}
}

var (
	_ scheduling.Scopes          = (*Store)(nil)
	_ scheduling.JobStore        = (*Store)(nil)
	_ scheduling.TenantDirectory = (*Store)(nil)
	_ scheduling.TenantStore     = (*tenantStore)(nil)
)

// Tenant returns the accessor bound to tenantID.
func (s *Store) Tenant(tenantID uuid.UUID) scheduling.TenantStore {
	return &tenantStore{db: s.db, tenantID: tenantID, logger: s.logger}
}

// Jobs returns the cross-tenant job scanner.
func (s *Store) Jobs() scheduling.JobStore { return s }

type tenantStore struct {
	db       DB
	tenantID uuid.UUID
	logger   *logging.Logger
}

func (t *tenantStore) TenantID() uuid.UUID { return t.tenantID }

// inTx runs fn in a transaction scoped to the tenant. The deferred rollback
// is a no-op after a successful commit.
func (t *tenantStore) inTx(ctx context.Context, op string, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("postgres: %s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, setTenantSQL, t.tenantID.String()); err != nil {
		return fmt.Errorf("postgres: %s: set tenant: %w", op, err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps conflict SQLSTATEs to SlotTaken and wraps the rest. Errors
// that already carry a kind pass through unchanged.
func classify(op string, err error) error {
	if scheduling.KindOf(err) != "" {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateExclusionViolation:
			return scheduling.Taken("postgres."+op, err)
		}
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// notFoundOr turns pgx.ErrNoRows into a NotFound error for what.
func notFoundOr(op, what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduling.Missing("postgres."+op, what)
	}
	return classify(op, err)
}
