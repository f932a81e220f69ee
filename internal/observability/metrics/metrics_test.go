package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveBooking("slot_taken")
	m.ObserveSearch("day", 15*time.Millisecond)
	m.ObserveJobRun("reminders", "ok")
	m.ObserveJobMessage("waitlist", "sent")
	m.ObserveOutbound("whatsapp", "sent")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var bookings *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "clinic_scheduler_bookings_total" {
			bookings = f
		}
	}
	if bookings == nil {
		t.Fatalf("bookings counter not registered")
	}
	total := 0.0
	for _, metric := range bookings.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	if total != 3 {
		t.Fatalf("expected 3 bookings observed, got %v", total)
	}
}

func TestSchedulingMetricsDefaultRegistry(t *testing.T) {
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewSchedulingMetrics(nil)
	m.ObserveBooking("created")
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("created")
	m.ObserveSearch("next", time.Second)
	m.ObserveJobRun("waitlist", "error")
	m.ObserveJobMessage("reminders", "skipped_opt_out")
	m.ObserveOutbound("sms", "failed")
}
