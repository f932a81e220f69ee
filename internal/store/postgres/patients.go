package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

const patientColumns = `id, tenant_id, name, COALESCE(phone, ''), COALESCE(email, ''), opted_out, created_at`

func scanPatient(row pgx.Row) (*scheduling.Patient, error) {
	var p scheduling.Patient
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone, &p.Email, &p.OptedOut, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ResolvePatient upserts by (tenant_id, phone). Email-only patients are
// matched case-insensitively among rows without a phone.
func (t *tenantStore) ResolvePatient(ctx context.Context, p scheduling.Patient) (*scheduling.Patient, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Phone == "" && p.Email == "" {
		return nil, scheduling.Invalid("postgres.resolve_patient", "patient phone or email is required")
	}
	var out *scheduling.Patient
	err := t.inTx(ctx, "resolve_patient", writeTx, func(tx pgx.Tx) error {
		var err error
		if p.Phone != "" {
			out, err = scanPatient(tx.QueryRow(ctx, `
				INSERT INTO patients (id, tenant_id, name, phone, email)
				VALUES ($1, $2, $3, $4, NULLIF($5, ''))
				ON CONFLICT (tenant_id, phone) DO UPDATE
				SET name = CASE WHEN patients.name = '' THEN EXCLUDED.name ELSE patients.name END
				RETURNING `+patientColumns,
				uuid.New(), t.tenantID, p.Name, p.Phone, p.Email))
			if err != nil {
				return classify("resolve_patient", err)
			}
			return nil
		}

		out, err = scanPatient(tx.QueryRow(ctx, `
			SELECT `+patientColumns+`
			FROM patients
			WHERE tenant_id = $1 AND phone IS NULL AND lower(email) = $2
			ORDER BY created_at
			LIMIT 1
		`, t.tenantID, p.Email))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return classify("resolve_patient", err)
		}
		out, err = scanPatient(tx.QueryRow(ctx, `
			INSERT INTO patients (id, tenant_id, name, email)
			VALUES ($1, $2, $3, $4)
			RETURNING `+patientColumns,
			uuid.New(), t.tenantID, p.Name, p.Email))
		if err != nil {
			return classify("resolve_patient", err)
		}
		return nil
	})
	return out, err
}

func (t *tenantStore) GetPatient(ctx context.Context, id uuid.UUID) (*scheduling.Patient, error) {
	var p *scheduling.Patient
	err := t.inTx(ctx, "get_patient", readTx, func(tx pgx.Tx) error {
		var err error
		p, err = scanPatient(tx.QueryRow(ctx,
			`SELECT `+patientColumns+` FROM patients WHERE tenant_id = $1 AND id = $2`, t.tenantID, id))
		if err != nil {
			return notFoundOr("get_patient", "patient", err)
		}
		return nil
	})
	return p, err
}

const waitlistColumns = `id, tenant_id, location_id, patient_id, priority, active, resolution, created_at, resolved_at`

func scanWaitlistEntry(row pgx.Row) (*scheduling.WaitlistEntry, error) {
	var e scheduling.WaitlistEntry
	if err := row.Scan(&e.ID, &e.TenantID, &e.LocationID, &e.PatientID, &e.Priority, &e.Active, &e.Resolution, &e.CreatedAt, &e.ResolvedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *tenantStore) CreateWaitlistEntry(ctx context.Context, e *scheduling.WaitlistEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.TenantID = t.tenantID
	e.Active = true
	return t.inTx(ctx, "create_waitlist_entry", writeTx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM locations WHERE tenant_id = $1 AND id = $2)`, t.tenantID, e.LocationID,
		).Scan(&exists); err != nil {
			return classify("create_waitlist_entry", err)
		}
		if !exists {
			return scheduling.Missing("postgres.create_waitlist_entry", "location")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO waitlist_entries (id, tenant_id, location_id, patient_id, priority, active, created_at)
			VALUES ($1, $2, $3, $4, $5, true, $6)
		`, e.ID, t.tenantID, e.LocationID, e.PatientID, e.Priority, e.CreatedAt); err != nil {
			return classify("create_waitlist_entry", err)
		}
		return nil
	})
}

func (t *tenantStore) ListActiveWaitlist(ctx context.Context, locationID uuid.UUID, limit int) ([]scheduling.WaitlistEntry, error) {
	var out []scheduling.WaitlistEntry
	err := t.inTx(ctx, "list_active_waitlist", readTx, func(tx pgx.Tx) error {
		var lim *int
		if limit > 0 {
			lim = &limit
		}
		rows, err := tx.Query(ctx, `
			SELECT `+waitlistColumns+`
			FROM waitlist_entries
			WHERE tenant_id = $1 AND location_id = $2 AND active
			ORDER BY priority, created_at
			LIMIT $3
		`, t.tenantID, locationID, lim)
		if err != nil {
			return classify("list_active_waitlist", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanWaitlistEntry(rows)
			if err != nil {
				return classify("list_active_waitlist", err)
			}
			out = append(out, *e)
		}
		return rows.Err()
	})
	return out, err
}

func (t *tenantStore) ResolveWaitlistEntry(ctx context.Context, id uuid.UUID, resolution string, at time.Time) (*scheduling.WaitlistEntry, error) {
	var out *scheduling.WaitlistEntry
	err := t.inTx(ctx, "resolve_waitlist_entry", writeTx, func(tx pgx.Tx) error {
		var err error
		out, err = scanWaitlistEntry(tx.QueryRow(ctx, `
			UPDATE waitlist_entries
			SET active = false, resolution = $3, resolved_at = $4
			WHERE tenant_id = $1 AND id = $2 AND active
			RETURNING `+waitlistColumns,
			t.tenantID, id, resolution, at))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return classify("resolve_waitlist_entry", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM waitlist_entries WHERE tenant_id = $1 AND id = $2)`, t.tenantID, id,
		).Scan(&exists); err != nil {
			return classify("resolve_waitlist_entry", err)
		}
		if !exists {
			return scheduling.Missing("postgres.resolve_waitlist_entry", "waitlist entry")
		}
		return scheduling.Invalid("postgres.resolve_waitlist_entry", "waitlist entry already resolved")
	})
	return out, err
}
