package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// ClaimMessage inserts a pending row for (appointment, patient, type). A
// failed row is flipped back to pending and keeps its id; pending or sent
// rows win the conflict and nothing is returned.
func (t *tenantStore) ClaimMessage(ctx context.Context, e *scheduling.MessageLogEntry) (bool, error) {
	if e.AppointmentID == nil {
		return false, scheduling.Invalid("postgres.claim_message", "appointment_id is required to claim a message")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Direction == "" {
		e.Direction = scheduling.DirectionOutbound
	}
	e.TenantID = t.tenantID

	claimed := false
	err := t.inTx(ctx, "claim_message", writeTx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO message_log (id, tenant_id, patient_id, appointment_id, direction, type, status, channel)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
			ON CONFLICT (appointment_id, patient_id, type) DO UPDATE
			SET status = 'pending', error = '', channel = EXCLUDED.channel, updated_at = now()
			WHERE message_log.status = 'failed'
			RETURNING id, created_at, updated_at
		`, e.ID, t.tenantID, e.PatientID, *e.AppointmentID, string(e.Direction), string(e.Type), e.Channel,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return classify("claim_message", err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if claimed {
		e.Status = scheduling.MessagePending
		e.Error = ""
	}
	return claimed, nil
}

func (t *tenantStore) CompleteMessage(ctx context.Context, id uuid.UUID, status scheduling.MessageStatus, errMsg string) error {
	return t.inTx(ctx, "complete_message", writeTx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE message_log
			SET status = $3, error = $4, updated_at = now()
			WHERE tenant_id = $1 AND id = $2
		`, t.tenantID, id, string(status), errMsg)
		if err != nil {
			return classify("complete_message", err)
		}
		if tag.RowsAffected() == 0 {
			return scheduling.Missing("postgres.complete_message", "message log entry")
		}
		return nil
	})
}

func (t *tenantStore) CountMessages(ctx context.Context, appointmentID uuid.UUID, msgType scheduling.MessageType) (int, error) {
	var n int
	err := t.inTx(ctx, "count_messages", readTx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM message_log
			WHERE tenant_id = $1 AND appointment_id = $2 AND type = $3
		`, t.tenantID, appointmentID, string(msgType)).Scan(&n); err != nil {
			return classify("count_messages", err)
		}
		return nil
	})
	return n, err
}
