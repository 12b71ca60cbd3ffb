package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the billing service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Billing metrics
	WebhookEvents            *prometheus.CounterVec
	WebhookDuration          *prometheus.HistogramVec
	CheckoutsTotal           *prometheus.CounterVec
	PortalSessionsTotal      *prometheus.CounterVec
	ReconciliationsTotal     *prometheus.CounterVec
	CustomerRaceLostTotal    prometheus.Counter
	TransitionConflictsTotal prometheus.Counter
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		WebhookEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Processor webhook events by event class and outcome",
			},
			[]string{"processor", "kind", "outcome"},
		),
		WebhookDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_webhook_duration_seconds",
				Help:    "Time spent processing one webhook delivery",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"processor"},
		),
		CheckoutsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkouts_total",
				Help: "Checkout initiations by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		PortalSessionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_portal_sessions_total",
				Help: "Portal session requests by outcome",
			},
			[]string{"outcome"},
		),
		ReconciliationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_reconciliations_total",
				Help: "Post-checkout reconciliation waits by outcome",
			},
			[]string{"outcome"},
		),
		CustomerRaceLostTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "billing_customer_race_lost_total",
			Help: "Processor customers created by a request that lost the persist race",
		}),
		TransitionConflictsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "billing_transition_conflicts_total",
			Help: "Optimistic concurrency conflicts while applying webhook transitions",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// WebhookProcessed records one webhook delivery.
func (m *Metrics) WebhookProcessed(processor, kind, outcome string, d time.Duration) {
	m.WebhookEvents.WithLabelValues(processor, kind, outcome).Inc()
	m.WebhookDuration.WithLabelValues(processor).Observe(d.Seconds())
}

func (m *Metrics) CheckoutInitiated(plan, outcome string) {
	m.CheckoutsTotal.WithLabelValues(plan, outcome).Inc()
}

func (m *Metrics) PortalIssued(outcome string) {
	m.PortalSessionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ReconciliationFinished(outcome string) {
	m.ReconciliationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CustomerRaceLost() {
	m.CustomerRaceLostTotal.Inc()
}

func (m *Metrics) TransitionConflict() {
	m.TransitionConflictsTotal.Inc()
}
