package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/internal/api/httperr"
	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/tenancy"
)

func newTestRouter(f *fixture, trusted bool) http.Handler {
	h := NewHandler(f.svc, f.store, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := tenancy.WithTenantID(req.Context(), f.tenant.ID)
			if trusted {
				ctx = tenancy.WithTrusted(ctx)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Mount("/appointments", h.Routes())
	return r
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndConflict(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, false)
	body := `{"location_id":"` + f.location.ID.String() + `","patient":{"name":"Maria","phone":"+5511987654321"},"start":"2024-03-04T09:00:00-03:00"}`

	rec := postJSON(t, router, "/appointments/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, scheduling.StatusPending, resp.Appointment.Status)
	assert.Equal(t, "public", resp.Appointment.Channel)
	assert.Equal(t, "sent", resp.Notification.Outcome)

	rec = postJSON(t, router, "/appointments/", strings.Replace(body, "987654321", "900000000", 1))
	require.Equal(t, http.StatusConflict, rec.Code)
	var errBody httperr.Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "slot_taken", errBody.Code)
}

func TestHandlerTrustedCallerConfirms(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, true)
	body := `{"patient":{"name":"Maria","phone":"+5511987654321"},"start":"2024-03-04T10:00:00-03:00","duration_minutes":60}`

	rec := postJSON(t, router, "/appointments/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp createResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, scheduling.StatusConfirmed, resp.Appointment.Status)
	assert.Equal(t, "internal", resp.Appointment.Channel)
}

func TestHandlerValidationAndTransition(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, true)

	rec := postJSON(t, router, "/appointments/", `{"patient":{"phone":"abc"},"start":"2024-03-04T10:00:00-03:00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = postJSON(t, router, "/appointments/", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	res, err := f.svc.CreateAppointment(context.Background(), f.scope(), CreateRequest{
		Patient: PatientIdentity{Phone: "+5511987654321"},
		Start:   local(11, 0),
		Trusted: true,
	})
	require.NoError(t, err)

	rec = postJSON(t, router, "/appointments/"+res.Appointment.ID.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var appt scheduling.Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, scheduling.StatusCanceled, appt.Status)

	rec = postJSON(t, router, "/appointments/not-a-uuid/cancel", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRequiresTenant(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, f.store, nil)
	rec := postJSON(t, h.Routes(), "/", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
