package waitlist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
)

func TestServiceLifecycle(t *testing.T) {
	f := newJobFixture(t)
	scope := f.store.Tenant(f.tenant.ID)
	svc := NewService(nil).WithDefaultCountryCode("+55")
	ctx := context.Background()

	second, err := svc.Join(ctx, scope, JoinRequest{LocationID: f.location.ID, Patient: appointments.PatientIdentity{Phone: "(11) 90000-0002"}, Priority: 2})
	require.NoError(t, err)
	first, err := svc.Join(ctx, scope, JoinRequest{LocationID: f.location.ID, Patient: appointments.PatientIdentity{Phone: "11 90000-0001"}, Priority: 1})
	require.NoError(t, err)

	entries, err := svc.List(ctx, scope, f.location.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)

	patient, err := scope.GetPatient(ctx, first.PatientID)
	require.NoError(t, err)
	assert.Equal(t, "+5511900000001", patient.Phone)

	resolved, err := svc.Resolve(ctx, scope, first.ID, scheduling.ResolutionAccepted)
	require.NoError(t, err)
	assert.False(t, resolved.Active)
	assert.Equal(t, scheduling.ResolutionAccepted, resolved.Resolution)
	require.NotNil(t, resolved.ResolvedAt)

	entries, err = svc.List(ctx, scope, f.location.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second.ID, entries[0].ID)

	_, err = svc.Resolve(ctx, scope, first.ID, scheduling.ResolutionDeclined)
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))
	_, err = svc.Resolve(ctx, scope, second.ID, "maybe")
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))
	_, err = svc.Resolve(ctx, scope, uuid.New(), scheduling.ResolutionResolved)
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
}

func TestServiceJoinValidation(t *testing.T) {
	f := newJobFixture(t)
	scope := f.store.Tenant(f.tenant.ID)
	svc := NewService(nil)
	ctx := context.Background()

	_, err := svc.Join(ctx, scope, JoinRequest{Patient: appointments.PatientIdentity{Phone: "+5511900000001"}})
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))

	_, err = svc.Join(ctx, scope, JoinRequest{LocationID: f.location.ID, Patient: appointments.PatientIdentity{Phone: "+5511900000001"}, Priority: -1})
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))

	_, err = svc.Join(ctx, scope, JoinRequest{LocationID: f.location.ID})
	assert.True(t, scheduling.IsKind(err, scheduling.ValidationError))

	_, err = svc.Join(ctx, scope, JoinRequest{LocationID: uuid.New(), Patient: appointments.PatientIdentity{Phone: "+5511900000001"}})
	assert.ErrorIs(t, err, scheduling.ErrNotFound)
}

func TestHandlerJoinListResolve(t *testing.T) {
	f := newJobFixture(t)
	h := NewHandler(NewService(nil), f.store, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenancy.WithTenantID(req.Context(), f.tenant.ID)))
		})
	})
	r.Mount("/waitlist", h.Routes())

	body := `{"location_id":"` + f.location.ID.String() + `","patient":{"name":"Rita","phone":"+5511900000009"},"priority":1}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/waitlist/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry scheduling.WaitlistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.True(t, entry.Active)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/waitlist/?location_id="+f.location.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), entry.ID.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/waitlist/"+entry.ID.String()+"/resolve", strings.NewReader(`{"resolution":"declined"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"resolution":"declined"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/waitlist/?location_id=nope", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
