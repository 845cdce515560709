package monitoring

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"modrota/internal/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ===============================
// METRICS
// ===============================

// Metrics holds the engine's prometheus instruments.
type Metrics struct {
	BadgesOffered  *prometheus.CounterVec
	BadgesResolved *prometheus.CounterVec
	DecisionsTotal *prometheus.CounterVec
	SweepDuration  *prometheus.HistogramVec
	SweepErrors    *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	registry       *prometheus.Registry
}

// NewMetrics registers the engine's instruments on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BadgesOffered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modrota",
			Name:      "badges_offered_total",
			Help:      "Badge offers created, by scope kind.",
		}, []string{"scope_kind"}),
		BadgesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modrota",
			Name:      "badges_resolved_total",
			Help:      "Badge terminal transitions, by final status.",
		}, []string{"status"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modrota",
			Name:      "decisions_total",
			Help:      "Moderation decisions recorded, by verdict.",
		}, []string{"decision"}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modrota",
			Name:      "sweep_duration_seconds",
			Help:      "Scheduled sweep runtimes, by job.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"job"}),
		SweepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modrota",
			Name:      "sweep_errors_total",
			Help:      "Scheduled sweep failures, by job.",
		}, []string{"job"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modrota",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, path pattern and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modrota",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies, by method and path pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Handler serves the prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveSweep records one scheduled job run.
func (m *Metrics) ObserveSweep(job string, elapsed time.Duration, err error) {
	m.SweepDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.SweepErrors.WithLabelValues(job).Inc()
	}
}

// Subscribe wires the domain counters to the event bus. Badge and moderation
// events drive the instruments, so no service touches prometheus directly.
func (m *Metrics) Subscribe(bus events.EventBus) error {
	handler := events.EventHandlerFunc{ID: "prometheus-counters", Func: m.observeEvent}
	if err := bus.SubscribePattern("badge:*", handler); err != nil {
		return err
	}
	return bus.SubscribePattern("moderation:*", handler)
}

func (m *Metrics) observeEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.BadgeEvent:
		switch e.GetEventType() {
		case events.TypeBadgeOffered:
			m.BadgesOffered.WithLabelValues(string(e.Scope.Kind)).Inc()
		case events.TypeBadgeAccepted:
			// Acceptance is not terminal; the badge resolves later.
		default:
			status := strings.TrimPrefix(e.GetEventType(), "badge:")
			m.BadgesResolved.WithLabelValues(status).Inc()
		}
	case *events.ModerationEvent:
		m.DecisionsTotal.WithLabelValues(string(e.Decision)).Inc()
	}
	return nil
}
