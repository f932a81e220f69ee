// Package admin is the platform-operator capability: cross-tenant listings,
// booking statistics and integration credentials. Tenant-facing code never
// receives it.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/clinic-scheduler/internal/integrations"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// TenantSummary is one row of the tenant listing.
type TenantSummary struct {
	scheduling.Tenant
	Locations int `json:"locations"`
}

// Stats aggregates a tenant's bookings and outbound messages over a period.
type Stats struct {
	TenantID     uuid.UUID      `json:"tenant_id"`
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	Appointments map[string]int `json:"appointments"`
	Messages     map[string]int `json:"messages"`
}

// Store reads and writes platform data over database/sql.
type Store struct {
	db *sql.DB
}

// NewStore creates an admin store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ integrations.Source = (*Store)(nil)

// ListTenants returns every tenant, or only ids when non-empty.
func (s *Store) ListTenants(ctx context.Context, ids []uuid.UUID) ([]TenantSummary, error) {
	filter := make([]string, len(ids))
	for i, id := range ids {
		filter[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.slug, t.name, t.created_at, COUNT(l.id)
		FROM tenants t
		LEFT JOIN locations l ON l.tenant_id = t.id
		WHERE cardinality($1::uuid[]) = 0 OR t.id = ANY($1::uuid[])
		GROUP BY t.id
		ORDER BY t.slug`, pq.Array(filter))
	if err != nil {
		return nil, fmt.Errorf("admin: list tenants: %w", err)
	}
	defer rows.Close()

	out := []TenantSummary{}
	for rows.Next() {
		var ts TenantSummary
		if err := rows.Scan(&ts.ID, &ts.Slug, &ts.Name, &ts.CreatedAt, &ts.Locations); err != nil {
			return nil, fmt.Errorf("admin: scan tenant: %w", err)
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// TenantStats counts appointments created and messages logged in [from, to).
func (s *Store) TenantStats(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*Stats, error) {
	stats := &Stats{TenantID: tenantID, From: from, To: to, Appointments: map[string]int{}, Messages: map[string]int{}}

	if err := s.countBy(ctx, stats.Appointments, `
		SELECT status, COUNT(*) FROM appointments
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY status`, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("admin: appointment stats: %w", err)
	}
	if err := s.countBy(ctx, stats.Messages, `
		SELECT status, COUNT(*) FROM message_log
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY status`, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("admin: message stats: %w", err)
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, dst map[string]int, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

// PutCredentials stores validated credentials for a tenant, replacing any
// previous value of the same kind.
func (s *Store) PutCredentials(ctx context.Context, tenantID uuid.UUID, creds integrations.Credentials) error {
	data, err := integrations.Marshal(creds)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_integrations (tenant_id, kind, credentials, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, kind) DO UPDATE
		SET credentials = EXCLUDED.credentials, updated_at = now()`,
		tenantID, string(creds.Kind()), data)
	if err != nil {
		return fmt.Errorf("admin: put credentials: %w", err)
	}
	return nil
}

// GetCredentials implements integrations.Source. Stored JSON is re-parsed so
// a row edited by hand still has to validate.
func (s *Store) GetCredentials(ctx context.Context, tenantID uuid.UUID, kind integrations.Kind) (integrations.Credentials, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT credentials FROM tenant_integrations
		WHERE tenant_id = $1 AND kind = $2`, tenantID, string(kind)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, integrations.ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("admin: get credentials: %w", err)
	}
	return integrations.Parse(kind, raw)
}
