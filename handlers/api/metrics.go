package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics are the frontend's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	backendRequests  *prometheus.CounterVec
	backendLatency   *prometheus.HistogramVec
	studyTransitions *prometheus.CounterVec
	staleResponses   prometheus.Counter
	notifications    *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashdeck_backend_requests_total",
			Help: "Requests sent to the REST backend.",
		}, []string{"endpoint", "code"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flashdeck_backend_request_duration_seconds",
			Help:    "Latency of REST backend requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		studyTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashdeck_study_transitions_total",
			Help: "Study navigation requests by outcome.",
		}, []string{"direction", "outcome"}),
		staleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flashdeck_stale_card_responses_total",
			Help: "Card list responses dropped because a newer filter was requested.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flashdeck_notifications_total",
			Help: "User notifications by delivery path.",
		}, []string{"delivery"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.backendRequests,
		m.backendLatency,
		m.studyTransitions,
		m.staleResponses,
		m.notifications,
	)
	return m
}

func (m *Metrics) observeBackend(endpoint, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(endpoint, code).Inc()
	m.backendLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// StudyTransition counts a navigation request; accepted=false means it hit the lock
func (m *Metrics) StudyTransition(direction string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "dropped"
	}
	m.studyTransitions.WithLabelValues(direction, outcome).Inc()
}

// StaleResponse counts a discarded card list response
func (m *Metrics) StaleResponse() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}

func (m *Metrics) notification(delivery string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(delivery).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
