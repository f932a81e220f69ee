package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for booking, search and jobs.
type SchedulingMetrics struct {
	bookingsTotal *prometheus.CounterVec
	searchLatency *prometheus.HistogramVec
	jobRunsTotal  *prometheus.CounterVec
	jobMessages   *prometheus.CounterVec
	outboundTotal *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "bookings_total",
			Help:      "Appointment creation attempts by result",
		}, []string{"result"}),
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic_scheduler",
			Name:      "slot_search_seconds",
			Help:      "Latency of slot generation and next-available search",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		jobRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "job_runs_total",
			Help:      "Background job runs by job and status",
		}, []string{"job", "status"}),
		jobMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Name:      "job_messages_total",
			Help:      "Per-candidate outcomes of background jobs",
		}, []string{"job", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic_scheduler",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Outbound template sends by provider and status",
		}, []string{"provider", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.searchLatency, m.jobRunsTotal, m.jobMessages, m.outboundTotal)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveSearch(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchLatency.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *SchedulingMetrics) ObserveJobRun(job, status string) {
	if m == nil {
		return
	}
	m.jobRunsTotal.WithLabelValues(job, status).Inc()
}

func (m *SchedulingMetrics) ObserveJobMessage(job, outcome string) {
	if m == nil {
		return
	}
	m.jobMessages.WithLabelValues(job, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveOutbound(provider, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(provider, status).Inc()
}
