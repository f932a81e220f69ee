package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

var base = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func appt(tenant, location uuid.UUID, provider *uuid.UUID, start time.Time, mins int) *scheduling.Appointment {
	return &scheduling.Appointment{
		TenantID:   tenant,
		LocationID: location,
		ProviderID: provider,
		PatientID:  uuid.New(),
		Start:      start,
		End:        start.Add(time.Duration(mins) * time.Minute),
		Status:     scheduling.StatusPending,
	}
}

func TestTenantScopeHidesOtherTenants(t *testing.T) {
	st := New()
	a := st.AddTenant(scheduling.Tenant{Slug: "a"})
	b := st.AddTenant(scheduling.Tenant{Slug: "b"})
	loc := st.AddLocation(scheduling.Location{TenantID: a.ID, Name: "A", Timezone: "UTC"})
	p := st.AddPatient(scheduling.Patient{TenantID: a.ID, Phone: "+15550001"})
	ctx := context.Background()

	_, err := st.Tenant(b.ID).GetLocation(ctx, loc.ID)
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
	_, err = st.Tenant(b.ID).GetPatient(ctx, p.ID)
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
	locs, err := st.Tenant(b.ID).ListLocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locs)

	err = st.Tenant(b.ID).InsertAppointment(ctx, appt(a.ID, loc.ID, nil, base, 30), nil)
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))

	found, err := st.GetTenantBySlug(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
}

func TestInsertAppointmentRejectsConflicts(t *testing.T) {
	st := New()
	tenant := st.AddTenant(scheduling.Tenant{Slug: "t"})
	loc := st.AddLocation(scheduling.Location{TenantID: tenant.ID, Timezone: "UTC"})
	scope := st.Tenant(tenant.ID)
	ctx := context.Background()
	p1, p2 := uuid.New(), uuid.New()

	require.NoError(t, scope.InsertAppointment(ctx, appt(tenant.ID, loc.ID, &p1, base, 30), nil))

	err := scope.InsertAppointment(ctx, appt(tenant.ID, loc.ID, &p1, base.Add(15*time.Minute), 30), nil)
	assert.ErrorIs(t, err, scheduling.ErrSlotTaken)

	err = scope.InsertAppointment(ctx, appt(tenant.ID, loc.ID, nil, base.Add(15*time.Minute), 30), nil)
	assert.ErrorIs(t, err, scheduling.ErrSlotTaken, "provider-less appointment overlaps every provider")

	assert.NoError(t, scope.InsertAppointment(ctx, appt(tenant.ID, loc.ID, &p2, base, 30), nil))
	assert.NoError(t, scope.InsertAppointment(ctx, appt(tenant.ID, loc.ID, &p1, base.Add(30*time.Minute), 30), nil), "adjacent intervals do not overlap")
}

func TestInsertAppointmentRunsCheckAgainstOccupancy(t *testing.T) {
	st := New()
	tenant := st.AddTenant(scheduling.Tenant{Slug: "t"})
	loc := st.AddLocation(scheduling.Location{TenantID: tenant.ID, Timezone: "UTC"})
	provider := st.AddProvider(scheduling.Provider{TenantID: tenant.ID})
	st.AddBlock(scheduling.AvailabilityBlock{TenantID: tenant.ID, ProviderID: provider.ID, Start: base, End: base.Add(time.Hour)})
	scope := st.Tenant(tenant.ID)

	var seen scheduling.Occupancy
	err := scope.InsertAppointment(context.Background(), appt(tenant.ID, loc.ID, &provider.ID, base.Add(30*time.Minute), 30), func(occ scheduling.Occupancy) error {
		seen = occ
		if timewindow.OverlapsAny(timewindow.Interval{Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)}, occ.Intervals()) {
			return scheduling.Taken("test", nil)
		}
		return nil
	})
	assert.ErrorIs(t, err, scheduling.ErrSlotTaken)
	assert.Len(t, seen.Blocks, 1)
	assert.Empty(t, st.Appointments(tenant.ID))
}

func TestListOccupancyWithoutProviderIgnoresBlocks(t *testing.T) {
	st := New()
	tenant := st.AddTenant(scheduling.Tenant{Slug: "t"})
	loc := st.AddLocation(scheduling.Location{TenantID: tenant.ID, Timezone: "UTC"})
	provider := st.AddProvider(scheduling.Provider{TenantID: tenant.ID})
	other := uuid.New()
	st.AddBlock(scheduling.AvailabilityBlock{TenantID: tenant.ID, ProviderID: provider.ID, Start: base, End: base.Add(time.Hour)})
	st.PutAppointment(*appt(tenant.ID, loc.ID, &other, base, 30))
	canceled := appt(tenant.ID, loc.ID, nil, base, 30)
	canceled.Status = scheduling.StatusCanceled
	st.PutAppointment(*canceled)

	window := timewindow.Interval{Start: base.Add(-time.Hour), End: base.Add(2 * time.Hour)}
	occ, err := st.Tenant(tenant.ID).ListOccupancy(context.Background(), loc.ID, nil, window)
	require.NoError(t, err)
	assert.Len(t, occ.Appointments, 1)
	assert.Empty(t, occ.Blocks)

	occ, err = st.Tenant(tenant.ID).ListOccupancy(context.Background(), loc.ID, &provider.ID, window)
	require.NoError(t, err)
	assert.Empty(t, occ.Appointments)
	assert.Len(t, occ.Blocks, 1)
}

func TestUpdateAppointmentStatusGuardsAndStampsCancel(t *testing.T) {
	st := New()
	tenant := st.AddTenant(scheduling.Tenant{Slug: "t"})
	loc := st.AddLocation(scheduling.Location{TenantID: tenant.ID, Timezone: "UTC"})
	a := st.PutAppointment(*appt(tenant.ID, loc.ID, nil, base, 30))
	scope := st.Tenant(tenant.ID)
	ctx := context.Background()

	_, err := scope.UpdateAppointmentStatus(ctx, a.ID, []scheduling.AppointmentStatus{scheduling.StatusConfirmed}, scheduling.StatusCompleted, base)
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))

	at := base.Add(-time.Hour)
	got, err := scope.UpdateAppointmentStatus(ctx, a.ID, []scheduling.AppointmentStatus{scheduling.StatusPending}, scheduling.StatusCanceled, at)
	require.NoError(t, err)
	require.NotNil(t, got.CanceledAt)
	assert.Equal(t, at, *got.CanceledAt)

	canceled, err := st.ListRecentlyCanceled(ctx, at, timewindow.Interval{Start: base, End: base.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, canceled, 1)
}

func TestClaimMessageProtocol(t *testing.T) {
	st := New()
	tenant := st.AddTenant(scheduling.Tenant{Slug: "t"})
	scope := st.Tenant(tenant.ID)
	ctx := context.Background()
	apptID, patientID := uuid.New(), uuid.New()
	entry := func() *scheduling.MessageLogEntry {
		id := apptID
		return &scheduling.MessageLogEntry{PatientID: patientID, AppointmentID: &id, Type: scheduling.MessageReminder2h}
	}

	first := entry()
	ok, err := scope.ClaimMessage(ctx, first)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, scheduling.MessagePending, first.Status)

	ok, err = scope.ClaimMessage(ctx, entry())
	require.NoError(t, err)
	assert.False(t, ok, "pending claim blocks a second claimant")

	require.NoError(t, scope.CompleteMessage(ctx, first.ID, scheduling.MessageFailed, "timeout"))
	retry := entry()
	ok, err = scope.ClaimMessage(ctx, retry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, retry.ID)

	require.NoError(t, scope.CompleteMessage(ctx, retry.ID, scheduling.MessageSent, ""))
	ok, err = scope.ClaimMessage(ctx, entry())
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := scope.CountMessages(ctx, apptID, scheduling.MessageReminder2h)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = scope.ClaimMessage(ctx, &scheduling.MessageLogEntry{PatientID: patientID, Type: scheduling.MessageReminder2h})
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))
}

func TestResolvePatientEmailMatchesOnlyPhonelessPatients(t *testing.T) {
	st := New()
	tenant := st.AddTenant(scheduling.Tenant{Slug: "t"})
	scope := st.Tenant(tenant.ID)
	ctx := context.Background()

	withPhone := st.AddPatient(scheduling.Patient{TenantID: tenant.ID, Phone: "+5511988887777", Email: "ana@clinic.test", CreatedAt: base})

	created, err := scope.ResolvePatient(ctx, scheduling.Patient{Name: "Ana", Email: " Ana@Clinic.test "})
	require.NoError(t, err)
	assert.NotEqual(t, withPhone.ID, created.ID, "a patient with a phone is never matched by email")
	assert.Equal(t, "ana@clinic.test", created.Email)

	again, err := scope.ResolvePatient(ctx, scheduling.Patient{Email: "ANA@clinic.test"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	byPhone, err := scope.ResolvePatient(ctx, scheduling.Patient{Name: "Ana", Phone: "+5511988887777"})
	require.NoError(t, err)
	assert.Equal(t, withPhone.ID, byPhone.ID)
	assert.Equal(t, "Ana", byPhone.Name, "an empty stored name is filled in")

	_, err = scope.ResolvePatient(ctx, scheduling.Patient{Name: "Nobody"})
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))
}
