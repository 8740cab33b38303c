// Package metrics exposes prometheus metrics for HTTP traffic and relay activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"virtufit-backend/internal/relay"
)

type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	submitsTotal   *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	pollsTotal     *prometheus.CounterVec
	awaitsTotal    *prometheus.CounterVec
	awaitDuration  *prometheus.HistogramVec

	cacheLookups   *prometheus.CounterVec
	archiveResults *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every metric on a private registry under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	c.submitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_submits_total",
			Help:      "Generation jobs submitted to a provider, by outcome",
		},
		[]string{"provider", "outcome"},
	)

	c.submitDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_submit_duration_seconds",
			Help:      "Time spent uploading and creating a provider job",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	c.pollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_polls_total",
			Help:      "Provider status reads, by normalized status",
		},
		[]string{"provider", "status"},
	)

	c.awaitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_awaits_total",
			Help:      "Completed await calls, by caller-visible status",
		},
		[]string{"provider", "status"},
	)

	c.awaitDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_await_duration_seconds",
			Help:      "Time spent waiting for a task to finish",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60},
		},
		[]string{"provider"},
	)

	c.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_lookups_total",
			Help:      "Result cache lookups, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	c.archiveResults = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_uploads_total",
			Help:      "Model archive attempts, by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	return c
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (c *Collector) ObserveSubmit(provider string, err error, elapsed time.Duration) {
	c.submitsTotal.WithLabelValues(provider, outcome(err)).Inc()
	c.submitDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (c *Collector) ObservePoll(provider string, status relay.Status, err error) {
	label := string(status)
	switch {
	case err != nil:
		label = "error"
	case label == "":
		label = "unrecognized"
	}
	c.pollsTotal.WithLabelValues(provider, label).Inc()
}

func (c *Collector) ObserveAwait(provider string, status relay.Status, elapsed time.Duration) {
	c.awaitsTotal.WithLabelValues(provider, status.Public()).Inc()
	c.awaitDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordCacheLookup counts a cache read; kind is "session" or "task".
func (c *Collector) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (c *Collector) RecordArchive(backend string, err error) {
	c.archiveResults.WithLabelValues(backend, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if re, ok := relay.AsError(err); ok {
		return string(re.Kind)
	}
	return "error"
}
