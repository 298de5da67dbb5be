// Package metrics exposes Prometheus instrumentation for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service records into. Collectors
// are registered on a private registry so tests can instantiate the
// struct more than once.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	LLMCallsTotal  *prometheus.CounterVec
	LLMTokensTotal *prometheus.CounterVec

	QuotaRejectedTotal prometheus.Counter

	UpstreamRequestsTotal *prometheus.CounterVec
	FactCacheTotal        *prometheus.CounterVec
	QualityFlagsTotal     *prometheus.CounterVec
}

// New creates a metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veriscope_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veriscope_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"route"}),

		LLMCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veriscope_llm_calls_total",
			Help: "Outbound LLM calls by provider and outcome.",
		}, []string{"provider", "outcome"}),

		LLMTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veriscope_llm_tokens_total",
			Help: "Tokens reported by providers, split prompt/completion.",
		}, []string{"provider", "kind"}),

		QuotaRejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "veriscope_quota_rejected_total",
			Help: "Requests refused because the daily token ceiling was reached.",
		}),

		UpstreamRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veriscope_upstream_requests_total",
			Help: "Data-source requests by upstream and outcome.",
		}, []string{"upstream", "outcome"}),

		FactCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veriscope_fact_cache_total",
			Help: "Fact cache lookups by result (hit, miss, stale).",
		}, []string{"result"}),

		QualityFlagsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "veriscope_quality_flags_total",
			Help: "Quality flags attached to responses, by flag.",
		}, []string{"flag"}),
	}
}

// Handler serves the Prometheus exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordLLMCall records one routed LLM call and its token usage.
func (m *Metrics) RecordLLMCall(provider, outcome string, promptTokens, completionTokens int) {
	m.LLMCallsTotal.WithLabelValues(provider, outcome).Inc()
	if promptTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordFlags bumps the counter for each quality flag on a response.
func (m *Metrics) RecordFlags(flags []string) {
	for _, flag := range flags {
		m.QualityFlagsTotal.WithLabelValues(flag).Inc()
	}
}
