package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/integrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestListTenants(t *testing.T) {
	store, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()
	created := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM tenants t\s+LEFT JOIN locations l`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at", "count"}).
			AddRow(a.String(), "centro", "Clinica Centro", created, int64(2)).
			AddRow(b.String(), "sul", "Clinica Sul", created, int64(0)))

	tenants, err := store.ListTenants(context.Background(), []uuid.UUID{a, b})
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, a, tenants[0].ID)
	assert.Equal(t, "centro", tenants[0].Slug)
	assert.Equal(t, 2, tenants[0].Locations)
	assert.Equal(t, 0, tenants[1].Locations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTenantsEmptyIsNotNil(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM tenants t`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "created_at", "count"}))

	tenants, err := store.ListTenants(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tenants)
	assert.Empty(t, tenants)
}

func TestTenantStats(t *testing.T) {
	store, mock := newMockStore(t)
	tenantID := uuid.New()
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM appointments`).
		WithArgs(tenantID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("confirmed", int64(12)).
			AddRow("canceled", int64(3)))
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM message_log`).
		WithArgs(tenantID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("sent", int64(20)).
			AddRow("failed", int64(1)))

	stats, err := store.TenantStats(context.Background(), tenantID, from, to)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"confirmed": 12, "canceled": 3}, stats.Appointments)
	assert.Equal(t, map[string]int{"sent": 20, "failed": 1}, stats.Messages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantStatsQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM appointments`).
		WillReturnError(errors.New("connection reset"))

	_, err := store.TenantStats(context.Background(), uuid.New(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin: appointment stats")
}

func TestCredentialsRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	tenantID := uuid.New()
	creds := integrations.MetaWhatsApp{PhoneNumberID: "1055", AccessToken: "tok"}
	raw, err := integrations.Marshal(creds)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO tenant_integrations`).
		WithArgs(tenantID, "meta_whatsapp", raw).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.PutCredentials(context.Background(), tenantID, creds))

	mock.ExpectQuery(`SELECT credentials FROM tenant_integrations`).
		WithArgs(tenantID, "meta_whatsapp").
		WillReturnRows(sqlmock.NewRows([]string{"credentials"}).AddRow(raw))
	wa, err := integrations.WhatsApp(context.Background(), store, tenantID)
	require.NoError(t, err)
	assert.Equal(t, creds, wa)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPutCredentialsRejectsInvalid(t *testing.T) {
	store, mock := newMockStore(t)
	err := store.PutCredentials(context.Background(), uuid.New(), integrations.MetaWhatsApp{PhoneNumberID: "1055"})
	assert.ErrorIs(t, err, integrations.ErrInvalidCredentials)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCredentialsNotConfigured(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT credentials FROM tenant_integrations`).
		WillReturnRows(sqlmock.NewRows([]string{"credentials"}))

	_, err := store.GetCredentials(context.Background(), uuid.New(), integrations.KindMercadoPago)
	assert.ErrorIs(t, err, integrations.ErrNotConfigured)
}

func TestGetCredentialsRevalidatesStoredJSON(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT credentials FROM tenant_integrations`).
		WillReturnRows(sqlmock.NewRows([]string{"credentials"}).AddRow([]byte(`{"phone_number_id":"1","access_token":"x","extra":true}`)))

	_, err := store.GetCredentials(context.Background(), uuid.New(), integrations.KindMetaWhatsApp)
	assert.ErrorIs(t, err, integrations.ErrInvalidCredentials)
}
