package observability

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the scan/dispatch pipeline.
type Metrics struct {
	registry *prometheus.Registry

	dispatchesSentTotal    *prometheus.CounterVec
	dispatchesFailedTotal  *prometheus.CounterVec
	dispatchesSkippedTotal *prometheus.CounterVec
	candidatesScannedTotal *prometheus.CounterVec
	tenantRunsTotal        *prometheus.CounterVec
	tenantRunDuration      *prometheus.HistogramVec
	tickDuration           prometheus.Histogram
	notifierSendDuration   prometheus.Histogram
	alertsEmittedTotal     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		dispatchesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "dispatches_sent_total",
				Help:      "Total number of reminders dispatched successfully.",
			},
			[]string{"tenant"},
		),
		dispatchesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "dispatches_failed_total",
				Help:      "Total number of reminders that ended in failed state by reason.",
			},
			[]string{"tenant", "reason"},
		),
		dispatchesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "dispatches_skipped_total",
				Help:      "Total number of reminders skipped by the rate limiter by reason.",
			},
			[]string{"tenant", "reason"},
		),
		candidatesScannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "candidates_scanned_total",
				Help:      "Total number of candidates evaluated against rules.",
			},
			[]string{"tenant"},
		),
		tenantRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "tenant_runs_total",
				Help:      "Total number of tenant runs by outcome.",
			},
			[]string{"outcome"},
		),
		tenantRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "tenant_run_duration_seconds",
				Help:      "Tenant run duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"tenant"},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "tick_duration_seconds",
				Help:      "Scheduler tick duration in seconds across all tenants.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		notifierSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "notifier_send_duration_seconds",
				Help:      "Notifier send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		alertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "alerts_emitted_total",
				Help:      "Total number of staff alerts emitted by category.",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.dispatchesSentTotal,
		m.dispatchesFailedTotal,
		m.dispatchesSkippedTotal,
		m.candidatesScannedTotal,
		m.tenantRunsTotal,
		m.tenantRunDuration,
		m.tickDuration,
		m.notifierSendDuration,
		m.alertsEmittedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncDispatchSent(tenant string) {
	if m == nil {
		return
	}
	m.dispatchesSentTotal.WithLabelValues(normalizeLabel(tenant)).Inc()
}

func (m *Metrics) IncDispatchFailed(tenant string, reason string) {
	if m == nil {
		return
	}
	m.dispatchesFailedTotal.WithLabelValues(normalizeLabel(tenant), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncDispatchSkipped(tenant string, reason string) {
	if m == nil {
		return
	}
	m.dispatchesSkippedTotal.WithLabelValues(normalizeLabel(tenant), normalizeLabel(reason)).Inc()
}

func (m *Metrics) AddCandidatesScanned(tenant string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.candidatesScannedTotal.WithLabelValues(normalizeLabel(tenant)).Add(float64(count))
}

func (m *Metrics) IncTenantRun(outcome string) {
	if m == nil {
		return
	}
	m.tenantRunsTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveTenantRunDuration(tenant string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tenantRunDuration.WithLabelValues(normalizeLabel(tenant)).Observe(positiveSeconds(duration))
}

func (m *Metrics) ObserveTickDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(positiveSeconds(duration))
}

func (m *Metrics) ObserveNotifierSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.notifierSendDuration.Observe(positiveSeconds(duration))
}

func (m *Metrics) IncAlertEmitted(category string) {
	if m == nil {
		return
	}
	m.alertsEmittedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func positiveSeconds(duration time.Duration) float64 {
	seconds := duration.Seconds()
	if seconds < 0 {
		return 0
	}
	return seconds
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
