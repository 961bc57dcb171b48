// Package metrics exposes request and upstream counters in Prometheus format.
//
// Metrics:
//   - chatproxy_requests_total: inbound requests by variant, route, status
//   - chatproxy_request_duration_seconds: inbound request latency
//   - chatproxy_upstream_requests_total: LLM calls by provider, model, status
//   - chatproxy_upstream_duration_seconds: LLM call latency
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatproxy"

type Collector struct {
	registry *prometheus.Registry
	variant  string

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry, so several
// servers can live in one test binary.
func NewCollector(variant string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		variant:  variant,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of inbound requests",
			},
			[]string{"variant", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of inbound requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"variant", "route"},
		),
		upstreamTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of calls to the LLM API",
			},
			[]string{"provider", "model", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Duration of LLM API calls in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.upstreamTotal,
		c.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveRequest(route string, status int, elapsed time.Duration) {
	c.requestsTotal.WithLabelValues(c.variant, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(c.variant, route).Observe(elapsed.Seconds())
}

// ObserveUpstream records one LLM call. status 0 means no HTTP response arrived.
func (c *Collector) ObserveUpstream(provider, model string, status int, elapsed time.Duration) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "transport_error"
	}
	c.upstreamTotal.WithLabelValues(provider, model, label).Inc()
	c.upstreamDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
