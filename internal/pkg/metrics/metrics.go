// Package metrics exposes Prometheus counters for entitlement decisions,
// payment processing and the expiry sweeper.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	DecisionsTotal    *prometheus.CounterVec
	EngineErrorsTotal *prometheus.CounterVec

	// Lifecycle metrics
	LifecycleTransitionsTotal *prometheus.CounterVec

	// Payment metrics
	PaymentEventsTotal *prometheus.CounterVec

	// Sweeper metrics
	SweepRunsTotal      *prometheus.CounterVec
	SweepExpiredTotal   prometheus.Counter
	SweepFailuresTotal  prometheus.Counter
	SweepDuration       prometheus.Histogram
	SweepLastSuccessful prometheus.Gauge
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartx_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smartx_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartx_entitlement_decisions_total",
				Help: "Entitlement decisions by feature, plan and outcome",
			},
			[]string{"feature", "plan", "outcome"},
		),
		EngineErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartx_entitlement_errors_total",
				Help: "Entitlement checks that failed with an error",
			},
			[]string{"kind"},
		),
		LifecycleTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartx_lifecycle_transitions_total",
				Help: "Subscription lifecycle operations by result",
			},
			[]string{"operation", "result"},
		),
		PaymentEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartx_payment_events_total",
				Help: "Processed payment events by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartx_sweep_runs_total",
				Help: "Expiry sweep runs by result",
			},
			[]string{"result"},
		),
		SweepExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartx_sweep_expired_total",
			Help: "Subscriptions downgraded by the expiry sweeper",
		}),
		SweepFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartx_sweep_failures_total",
			Help: "Subscriptions the sweeper failed to downgrade",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartx_sweep_duration_seconds",
			Help:    "Expiry sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SweepLastSuccessful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartx_sweep_last_success_timestamp_seconds",
			Help: "Unix time of the last completed sweep",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.EngineErrorsTotal,
		m.LifecycleTransitionsTotal,
		m.PaymentEventsTotal,
		m.SweepRunsTotal,
		m.SweepExpiredTotal,
		m.SweepFailuresTotal,
		m.SweepDuration,
		m.SweepLastSuccessful,
	)
	return m
}

func (m *Metrics) ObserveDecision(feature, plan, outcome string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(feature, plan, outcome).Inc()
}

func (m *Metrics) ObserveEngineError(kind string) {
	if m == nil {
		return
	}
	m.EngineErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveTransition(operation, result string) {
	if m == nil {
		return
	}
	m.LifecycleTransitionsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObservePayment(source, outcome string) {
	if m == nil {
		return
	}
	m.PaymentEventsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveSweep records one finished sweep run.
func (m *Metrics) ObserveSweep(result string, expired, failed int, started, finished time.Time) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(result).Inc()
	m.SweepExpiredTotal.Add(float64(expired))
	m.SweepFailuresTotal.Add(float64(failed))
	m.SweepDuration.Observe(finished.Sub(started).Seconds())
	if result == "completed" {
		m.SweepLastSuccessful.Set(float64(finished.Unix()))
	}
}

// Middleware counts requests by matched route pattern to keep label cardinality bounded.
func Middleware(m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
