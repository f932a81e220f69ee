package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

const appointmentColumns = `id, tenant_id, location_id, provider_id, service_id, patient_id, starts_at, ends_at, status, channel, notes, canceled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*scheduling.Appointment, error) {
	var (
		a      scheduling.Appointment
		status string
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.LocationID, &a.ProviderID, &a.ServiceID, &a.PatientID,
		&a.Start, &a.End, &status, &a.Channel, &a.Notes, &a.CanceledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = scheduling.AppointmentStatus(status)
	a.Start = a.Start.UTC()
	a.End = a.End.UTC()
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]scheduling.Appointment, error) {
	defer rows.Close()
	var out []scheduling.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Provider-less appointments always count; with a provider, other
// providers' appointments are excluded.
const occupancyAppointmentsSQL = `
	SELECT ` + appointmentColumns + `
	FROM appointments
	WHERE tenant_id = $1
		AND location_id = $2
		AND status IN ('pending', 'confirmed')
		AND starts_at < $4 AND ends_at > $3
		AND ($5::uuid IS NULL OR provider_id IS NULL OR provider_id = $5)
	ORDER BY starts_at
`

const occupancyBlocksSQL = `
	SELECT id, tenant_id, provider_id, starts_at, ends_at, reason
	FROM availability_blocks
	WHERE tenant_id = $1
		AND provider_id = $2
		AND starts_at < $4 AND ends_at > $3
	ORDER BY starts_at
`

func (t *tenantStore) occupancy(ctx context.Context, q querier, locationID uuid.UUID, providerID *uuid.UUID, window timewindow.Interval) (scheduling.Occupancy, error) {
	var occ scheduling.Occupancy
	rows, err := q.Query(ctx, occupancyAppointmentsSQL, t.tenantID, locationID, window.Start, window.End, providerID)
	if err != nil {
		return occ, classify("list_occupancy", err)
	}
	if occ.Appointments, err = collectAppointments(rows); err != nil {
		return occ, classify("list_occupancy", err)
	}
	if providerID == nil {
		return occ, nil
	}

	rows, err = q.Query(ctx, occupancyBlocksSQL, t.tenantID, *providerID, window.Start, window.End)
	if err != nil {
		return occ, classify("list_occupancy", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b scheduling.AvailabilityBlock
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ProviderID, &b.Start, &b.End, &b.Reason); err != nil {
			return occ, classify("list_occupancy", err)
		}
		occ.Blocks = append(occ.Blocks, b)
	}
	if err := rows.Err(); err != nil {
		return occ, classify("list_occupancy", err)
	}
	return occ, nil
}

func (t *tenantStore) ListOccupancy(ctx context.Context, locationID uuid.UUID, providerID *uuid.UUID, window timewindow.Interval) (scheduling.Occupancy, error) {
	var occ scheduling.Occupancy
	err := t.inTx(ctx, "list_occupancy", readTx, func(tx pgx.Tx) error {
		var err error
		occ, err = t.occupancy(ctx, tx, locationID, providerID, window)
		return err
	})
	return occ, err
}

// InsertAppointment re-reads occupancy and inserts inside one SERIALIZABLE
// transaction. A concurrent writer surfaces as 40001 on commit, or as 23P01
// from the exclusion constraint; both become SlotTaken.
func (t *tenantStore) InsertAppointment(ctx context.Context, appt *scheduling.Appointment, check scheduling.BookingCheck) error {
	if appt.TenantID != t.tenantID {
		return scheduling.Invalid("postgres.insert_appointment", "appointment tenant does not match scope")
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	return t.inTx(ctx, "insert_appointment", bookingTx, func(tx pgx.Tx) error {
		occ, err := t.occupancy(ctx, tx, appt.LocationID, appt.ProviderID, appt.Interval())
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(occ); err != nil {
				return err
			}
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO appointments (id, tenant_id, location_id, provider_id, service_id, patient_id, starts_at, ends_at, status, channel, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`, appt.ID, t.tenantID, appt.LocationID, appt.ProviderID, appt.ServiceID, appt.PatientID,
			appt.Start, appt.End, string(appt.Status), appt.Channel, appt.Notes,
		).Scan(&appt.CreatedAt, &appt.UpdatedAt)
		if err != nil {
			return classify("insert_appointment", err)
		}
		return nil
	})
}

func (t *tenantStore) GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	var appt *scheduling.Appointment
	err := t.inTx(ctx, "get_appointment", readTx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx,
			`SELECT `+appointmentColumns+` FROM appointments WHERE tenant_id = $1 AND id = $2`, t.tenantID, id))
		if err != nil {
			return notFoundOr("get_appointment", "appointment", err)
		}
		return nil
	})
	return appt, err
}

func (t *tenantStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []scheduling.AppointmentStatus, to scheduling.AppointmentStatus, at time.Time) (*scheduling.Appointment, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	var appt *scheduling.Appointment
	err := t.inTx(ctx, "update_appointment_status", writeTx, func(tx pgx.Tx) error {
		var err error
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = $4,
				updated_at = $5,
				canceled_at = CASE WHEN $4::text = 'canceled' THEN $5 ELSE canceled_at END
			WHERE tenant_id = $1 AND id = $2 AND status = ANY($3)
			RETURNING `+appointmentColumns,
			t.tenantID, id, allowed, string(to), at))
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return classify("update_appointment_status", err)
		}
		var current string
		if err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE tenant_id = $1 AND id = $2`, t.tenantID, id).Scan(&current); err != nil {
			return notFoundOr("update_appointment_status", "appointment", err)
		}
		return scheduling.Invalid("postgres.update_appointment_status", "cannot move appointment from %s to %s", current, to)
	})
	return appt, err
}

// ListRecentlyCanceled implements scheduling.JobStore. Job scans run
// without a tenant setting under a role that bypasses row-level security.
func (s *Store) ListRecentlyCanceled(ctx context.Context, canceledSince time.Time, startWindow timewindow.Interval) ([]scheduling.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'canceled'
			AND canceled_at >= $1
			AND starts_at >= $2 AND starts_at < $3
		ORDER BY canceled_at
	`, canceledSince, startWindow.Start, startWindow.End)
	if err != nil {
		return nil, classify("list_recently_canceled", err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, classify("list_recently_canceled", err)
	}
	return out, nil
}

// ListConfirmedStartingIn implements scheduling.JobStore. Both bounds are
// inclusive.
func (s *Store) ListConfirmedStartingIn(ctx context.Context, window timewindow.Interval) ([]scheduling.Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
			AND starts_at BETWEEN $1 AND $2
		ORDER BY starts_at
	`, window.Start, window.End)
	if err != nil {
		return nil, classify("list_confirmed_starting_in", err)
	}
	out, err := collectAppointments(rows)
	if err != nil {
		return nil, classify("list_confirmed_starting_in", err)
	}
	return out, nil
}
