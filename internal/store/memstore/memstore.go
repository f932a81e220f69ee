// Package memstore is an in-memory implementation of the scheduling store
// contracts. All writes take a single mutex, so InsertAppointment's
// check-then-insert is atomic across goroutines.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
	"github.com/wolfman30/clinic-scheduler/internal/timewindow"
)

// Store holds every tenant's rows.
type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	tenants      map[uuid.UUID]scheduling.Tenant
	locations    map[uuid.UUID]scheduling.Location
	providers    map[uuid.UUID]scheduling.Provider
	services     map[uuid.UUID]scheduling.Service
	blocks       map[uuid.UUID]scheduling.AvailabilityBlock
	patients     map[uuid.UUID]scheduling.Patient
	appointments map[uuid.UUID]scheduling.Appointment
	waitlist     map[uuid.UUID]scheduling.WaitlistEntry
	messages     []scheduling.MessageLogEntry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		tenants:      map[uuid.UUID]scheduling.Tenant{},
		locations:    map[uuid.UUID]scheduling.Location{},
		providers:    map[uuid.UUID]scheduling.Provider{},
		services:     map[uuid.UUID]scheduling.Service{},
		blocks:       map[uuid.UUID]scheduling.AvailabilityBlock{},
		patients:     map[uuid.UUID]scheduling.Patient{},
		appointments: map[uuid.UUID]scheduling.Appointment{},
		waitlist:     map[uuid.UUID]scheduling.WaitlistEntry{},
	}
}

// WithClock overrides the timestamp source for created_at/updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

var (
	_ scheduling.Scopes          = (*Store)(nil)
	_ scheduling.JobStore        = (*Store)(nil)
	_ scheduling.TenantDirectory = (*Store)(nil)
	_ scheduling.TenantStore     = (*tenantScope)(nil)
)

// Tenant returns the accessor bound to tenantID.
func (s *Store) Tenant(tenantID uuid.UUID) scheduling.TenantStore {
	return &tenantScope{s: s, tenantID: tenantID}
}

// Jobs returns the job scanner.
func (s *Store) Jobs() scheduling.JobStore { return s }

// AddTenant seeds a tenant.
func (s *Store) AddTenant(t scheduling.Tenant) scheduling.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.tenants[t.ID] = t
	return t
}

// AddLocation seeds a location.
func (s *Store) AddLocation(l scheduling.Location) scheduling.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	s.locations[l.ID] = l
	return l
}

// AddProvider seeds a provider.
func (s *Store) AddProvider(p scheduling.Provider) scheduling.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.providers[p.ID] = p
	return p
}

// AddService seeds a service.
func (s *Store) AddService(sv scheduling.Service) scheduling.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sv.ID == uuid.Nil {
		sv.ID = uuid.New()
	}
	s.services[sv.ID] = sv
	return sv
}

// AddBlock seeds a provider availability block.
func (s *Store) AddBlock(b scheduling.AvailabilityBlock) scheduling.AvailabilityBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	s.blocks[b.ID] = b
	return b
}

// AddPatient seeds a patient.
func (s *Store) AddPatient(p scheduling.Patient) scheduling.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.patients[p.ID] = p
	return p
}

// PutAppointment writes an appointment as-is, bypassing conflict checks.
func (s *Store) PutAppointment(a scheduling.Appointment) scheduling.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.appointments[a.ID] = a
	return a
}

// Messages returns a copy of the message log.
func (s *Store) Messages() []scheduling.MessageLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduling.MessageLogEntry, len(s.messages))
	copy(out, s.messages)
	return out
}

// Appointments returns every appointment of tenantID ordered by start.
func (s *Store) Appointments(tenantID uuid.UUID) []scheduling.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduling.Appointment
	for _, a := range s.appointments {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// GetTenant implements scheduling.TenantDirectory.
func (s *Store) GetTenant(_ context.Context, id uuid.UUID) (*scheduling.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, scheduling.Missing("memstore.get_tenant", "tenant")
	}
	return &t, nil
}

// GetTenantBySlug implements scheduling.TenantDirectory.
func (s *Store) GetTenantBySlug(_ context.Context, slug string) (*scheduling.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Slug, slug) {
			t := t
			return &t, nil
		}
	}
	return nil, scheduling.Missing("memstore.get_tenant_by_slug", "tenant")
}

// ListRecentlyCanceled implements scheduling.JobStore.
func (s *Store) ListRecentlyCanceled(_ context.Context, canceledSince time.Time, startWindow timewindow.Interval) ([]scheduling.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduling.Appointment
	for _, a := range s.appointments {
		if a.Status != scheduling.StatusCanceled || a.CanceledAt == nil {
			continue
		}
		if a.CanceledAt.Before(canceledSince) {
			continue
		}
		if a.Start.Before(startWindow.Start) || !a.Start.Before(startWindow.End) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanceledAt.Before(*out[j].CanceledAt) })
	return out, nil
}

// ListConfirmedStartingIn implements scheduling.JobStore.
func (s *Store) ListConfirmedStartingIn(_ context.Context, window timewindow.Interval) ([]scheduling.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduling.Appointment
	for _, a := range s.appointments {
		if a.Status != scheduling.StatusConfirmed {
			continue
		}
		if a.Start.Before(window.Start) || a.Start.After(window.End) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

type tenantScope struct {
	s        *Store
	tenantID uuid.UUID
}

func (t *tenantScope) TenantID() uuid.UUID { return t.tenantID }

func (t *tenantScope) GetLocation(_ context.Context, id uuid.UUID) (*scheduling.Location, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	l, ok := t.s.locations[id]
	if !ok || l.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.get_location", "location")
	}
	return &l, nil
}

func (t *tenantScope) ListLocations(_ context.Context) ([]scheduling.Location, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []scheduling.Location
	for _, l := range t.s.locations {
		if l.TenantID == t.tenantID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *tenantScope) GetProvider(_ context.Context, id uuid.UUID) (*scheduling.Provider, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.providers[id]
	if !ok || p.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.get_provider", "provider")
	}
	return &p, nil
}

func (t *tenantScope) GetService(_ context.Context, id uuid.UUID) (*scheduling.Service, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sv, ok := t.s.services[id]
	if !ok || sv.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.get_service", "service")
	}
	return &sv, nil
}

func (t *tenantScope) ListOccupancy(_ context.Context, locationID uuid.UUID, providerID *uuid.UUID, window timewindow.Interval) (scheduling.Occupancy, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.occupancyLocked(locationID, providerID, window), nil
}

func (t *tenantScope) occupancyLocked(locationID uuid.UUID, providerID *uuid.UUID, window timewindow.Interval) scheduling.Occupancy {
	var occ scheduling.Occupancy
	for _, a := range t.s.appointments {
		if a.TenantID != t.tenantID || a.LocationID != locationID || !a.Status.IsActive() {
			continue
		}
		if providerID != nil && a.ProviderID != nil && *a.ProviderID != *providerID {
			continue
		}
		if !a.Interval().Overlaps(window) {
			continue
		}
		occ.Appointments = append(occ.Appointments, a)
	}
	if providerID != nil {
		for _, b := range t.s.blocks {
			if b.TenantID != t.tenantID || b.ProviderID != *providerID {
				continue
			}
			if b.Interval().Overlaps(window) {
				occ.Blocks = append(occ.Blocks, b)
			}
		}
	}
	sort.Slice(occ.Appointments, func(i, j int) bool { return occ.Appointments[i].Start.Before(occ.Appointments[j].Start) })
	sort.Slice(occ.Blocks, func(i, j int) bool { return occ.Blocks[i].Start.Before(occ.Blocks[j].Start) })
	return occ
}

// ResolvePatient matches by phone first. Email-only identities match only
// patients without a phone, oldest first.
func (t *tenantScope) ResolvePatient(_ context.Context, p scheduling.Patient) (*scheduling.Patient, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Phone == "" && p.Email == "" {
		return nil, scheduling.Invalid("memstore.resolve_patient", "patient phone or email is required")
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var match *scheduling.Patient
	for _, existing := range t.s.patients {
		if existing.TenantID != t.tenantID {
			continue
		}
		if p.Phone != "" {
			if existing.Phone != p.Phone {
				continue
			}
			if existing.Name == "" && p.Name != "" {
				existing.Name = p.Name
				t.s.patients[existing.ID] = existing
			}
			return &existing, nil
		}
		if existing.Phone != "" || !strings.EqualFold(existing.Email, p.Email) {
			continue
		}
		if match == nil || existing.CreatedAt.Before(match.CreatedAt) {
			e := existing
			match = &e
		}
	}
	if match != nil {
		return match, nil
	}
	p.ID = uuid.New()
	p.TenantID = t.tenantID
	p.CreatedAt = t.s.now()
	t.s.patients[p.ID] = p
	return &p, nil
}

func (t *tenantScope) GetPatient(_ context.Context, id uuid.UUID) (*scheduling.Patient, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.patients[id]
	if !ok || p.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.get_patient", "patient")
	}
	return &p, nil
}

func (t *tenantScope) InsertAppointment(_ context.Context, appt *scheduling.Appointment, check scheduling.BookingCheck) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if appt.TenantID != t.tenantID {
		return scheduling.Invalid("memstore.insert_appointment", "appointment tenant does not match scope")
	}
	occ := t.occupancyLocked(appt.LocationID, appt.ProviderID, appt.Interval())
	if check != nil {
		if err := check(occ); err != nil {
			return err
		}
	}
	for _, existing := range t.s.appointments {
		if appt.ConflictsWith(existing) {
			return scheduling.Taken("memstore.insert_appointment", nil)
		}
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := t.s.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.s.appointments[appt.ID] = *appt
	return nil
}

func (t *tenantScope) GetAppointment(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.appointments[id]
	if !ok || a.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.get_appointment", "appointment")
	}
	return &a, nil
}

func (t *tenantScope) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from []scheduling.AppointmentStatus, to scheduling.AppointmentStatus, at time.Time) (*scheduling.Appointment, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	a, ok := t.s.appointments[id]
	if !ok || a.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.update_appointment_status", "appointment")
	}
	allowed := false
	for _, st := range from {
		if a.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, scheduling.Invalid("memstore.update_appointment_status", "cannot move appointment from %s to %s", a.Status, to)
	}
	if to.IsActive() {
		candidate := a
		candidate.Status = to
		for otherID, other := range t.s.appointments {
			if otherID != id && candidate.ConflictsWith(other) {
				return nil, scheduling.Taken("memstore.update_appointment_status", nil)
			}
		}
	}
	a.Status = to
	a.UpdatedAt = at
	if to == scheduling.StatusCanceled {
		canceled := at
		a.CanceledAt = &canceled
	}
	t.s.appointments[id] = a
	return &a, nil
}

func (t *tenantScope) CreateWaitlistEntry(_ context.Context, e *scheduling.WaitlistEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	l, ok := t.s.locations[e.LocationID]
	if !ok || l.TenantID != t.tenantID {
		return scheduling.Missing("memstore.create_waitlist_entry", "location")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.TenantID = t.tenantID
	e.Active = true
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.s.now()
	}
	t.s.waitlist[e.ID] = *e
	return nil
}

func (t *tenantScope) ListActiveWaitlist(_ context.Context, locationID uuid.UUID, limit int) ([]scheduling.WaitlistEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []scheduling.WaitlistEntry
	for _, e := range t.s.waitlist {
		if e.TenantID == t.tenantID && e.LocationID == locationID && e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tenantScope) ResolveWaitlistEntry(_ context.Context, id uuid.UUID, resolution string, at time.Time) (*scheduling.WaitlistEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.waitlist[id]
	if !ok || e.TenantID != t.tenantID {
		return nil, scheduling.Missing("memstore.resolve_waitlist_entry", "waitlist entry")
	}
	if !e.Active {
		return nil, scheduling.Invalid("memstore.resolve_waitlist_entry", "waitlist entry already resolved")
	}
	e.Active = false
	e.Resolution = resolution
	resolved := at
	e.ResolvedAt = &resolved
	t.s.waitlist[id] = e
	return &e, nil
}

func sameKey(a, b scheduling.MessageLogEntry) bool {
	if a.AppointmentID == nil || b.AppointmentID == nil {
		return false
	}
	return *a.AppointmentID == *b.AppointmentID && a.PatientID == b.PatientID && a.Type == b.Type
}

func (t *tenantScope) ClaimMessage(_ context.Context, e *scheduling.MessageLogEntry) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e.TenantID = t.tenantID
	if e.AppointmentID == nil {
		return false, scheduling.Invalid("memstore.claim_message", "appointment_id is required to claim a message")
	}
	now := t.s.now()
	for i, existing := range t.s.messages {
		if existing.TenantID != t.tenantID || !sameKey(existing, *e) {
			continue
		}
		if existing.Status != scheduling.MessageFailed {
			return false, nil
		}
		existing.Status = scheduling.MessagePending
		existing.Error = ""
		existing.Channel = e.Channel
		existing.UpdatedAt = now
		t.s.messages[i] = existing
		*e = existing
		return true, nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Direction == "" {
		e.Direction = scheduling.DirectionOutbound
	}
	e.Status = scheduling.MessagePending
	e.CreatedAt = now
	e.UpdatedAt = now
	t.s.messages = append(t.s.messages, *e)
	return true, nil
}

func (t *tenantScope) CompleteMessage(_ context.Context, id uuid.UUID, status scheduling.MessageStatus, errMsg string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i, existing := range t.s.messages {
		if existing.ID == id && existing.TenantID == t.tenantID {
			existing.Status = status
			existing.Error = errMsg
			existing.UpdatedAt = t.s.now()
			t.s.messages[i] = existing
			return nil
		}
	}
	return scheduling.Missing("memstore.complete_message", "message log entry")
}

func (t *tenantScope) CountMessages(_ context.Context, appointmentID uuid.UUID, msgType scheduling.MessageType) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	n := 0
	for _, m := range t.s.messages {
		if m.TenantID == t.tenantID && m.AppointmentID != nil && *m.AppointmentID == appointmentID && m.Type == msgType {
			n++
		}
	}
	return n, nil
}
