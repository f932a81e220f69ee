package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

const tenantColumns = `id, slug, name, created_at`

func scanTenant(row pgx.Row) (*scheduling.Tenant, error) {
	var t scheduling.Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenant implements scheduling.TenantDirectory.
func (s *Store) GetTenant(ctx context.Context, id uuid.UUID) (*scheduling.Tenant, error) {
	t, err := scanTenant(s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr("get_tenant", "tenant", err)
	}
	return t, nil
}

// GetTenantBySlug implements scheduling.TenantDirectory.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*scheduling.Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, scheduling.Missing("postgres.get_tenant_by_slug", "tenant")
	}
	t, err := scanTenant(s.db.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE lower(slug) = $1`, slug))
	if err != nil {
		return nil, notFoundOr("get_tenant_by_slug", "tenant", err)
	}
	return t, nil
}

const locationColumns = `id, tenant_id, name, timezone, weekly_hours, slot_minutes, buffer_minutes`

func scanLocation(row pgx.Row) (*scheduling.Location, error) {
	var (
		l     scheduling.Location
		hours []byte
	)
	if err := row.Scan(&l.ID, &l.TenantID, &l.Name, &l.Timezone, &hours, &l.SlotMinutes, &l.BufferMinutes); err != nil {
		return nil, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &l.Hours); err != nil {
			return nil, scheduling.Misconfigured("postgres.scan_location", err, "location %s has malformed weekly_hours", l.ID)
		}
	}
	if err := l.Hours.Validate(); err != nil {
		return nil, scheduling.Misconfigured("postgres.scan_location", err, "location %s weekly_hours", l.ID)
	}
	return &l, nil
}

func (t *tenantStore) GetLocation(ctx context.Context, id uuid.UUID) (*scheduling.Location, error) {
	var loc *scheduling.Location
	err := t.inTx(ctx, "get_location", readTx, func(tx pgx.Tx) error {
		var err error
		loc, err = scanLocation(tx.QueryRow(ctx,
			`SELECT `+locationColumns+` FROM locations WHERE tenant_id = $1 AND id = $2`, t.tenantID, id))
		if err != nil {
			return notFoundOr("get_location", "location", err)
		}
		return nil
	})
	return loc, err
}

func (t *tenantStore) ListLocations(ctx context.Context) ([]scheduling.Location, error) {
	var out []scheduling.Location
	err := t.inTx(ctx, "list_locations", readTx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+locationColumns+` FROM locations WHERE tenant_id = $1 ORDER BY name`, t.tenantID)
		if err != nil {
			return classify("list_locations", err)
		}
		defer rows.Close()
		for rows.Next() {
			loc, err := scanLocation(rows)
			if err != nil {
				return classify("list_locations", err)
			}
			out = append(out, *loc)
		}
		return rows.Err()
	})
	return out, err
}

func (t *tenantStore) GetProvider(ctx context.Context, id uuid.UUID) (*scheduling.Provider, error) {
	var p *scheduling.Provider
	err := t.inTx(ctx, "get_provider", readTx, func(tx pgx.Tx) error {
		var (
			prov  scheduling.Provider
			hours []byte
		)
		err := tx.QueryRow(ctx, `
			SELECT id, tenant_id, name, default_location_id, timezone, weekly_hours
			FROM providers
			WHERE tenant_id = $1 AND id = $2
		`, t.tenantID, id).Scan(&prov.ID, &prov.TenantID, &prov.Name, &prov.DefaultLocationID, &prov.Timezone, &hours)
		if err != nil {
			return notFoundOr("get_provider", "provider", err)
		}
		if len(hours) > 0 {
			var wh scheduling.WeeklyHours
			if err := json.Unmarshal(hours, &wh); err != nil {
				return scheduling.Misconfigured("postgres.get_provider", err, "provider %s has malformed weekly_hours", prov.ID)
			}
			if err := wh.Validate(); err != nil {
				return scheduling.Misconfigured("postgres.get_provider", err, "provider %s weekly_hours", prov.ID)
			}
			prov.Hours = &wh
		}
		p = &prov
		return nil
	})
	return p, err
}

func (t *tenantStore) GetService(ctx context.Context, id uuid.UUID) (*scheduling.Service, error) {
	var sv *scheduling.Service
	err := t.inTx(ctx, "get_service", readTx, func(tx pgx.Tx) error {
		var s scheduling.Service
		err := tx.QueryRow(ctx, `
			SELECT id, tenant_id, name, duration_minutes
			FROM services
			WHERE tenant_id = $1 AND id = $2
		`, t.tenantID, id).Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes)
		if err != nil {
			return notFoundOr("get_service", "service", err)
		}
		sv = &s
		return nil
	})
	return sv, err
}
