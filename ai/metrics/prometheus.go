// Package metrics exports pipeline counters and latency histograms in
// Prometheus format. One exporter instance is shared by the chat
// transport, the context builder and the embedding cache.
package metrics

import (
	"bytes"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "mnemosyne"

// Config tunes the exporter. The zero value is usable.
type Config struct {
	// Registry receives the metric registrations. Nil means a fresh
	// private registry, which keeps Go runtime metrics out of /metrics.
	Registry *prometheus.Registry

	// LatencyBuckets are the histogram bounds in seconds, shared by
	// all latency metrics.
	LatencyBuckets []float64
}

// DefaultConfig spreads latency buckets up to the 120s request
// timeout, since completion calls routinely run tens of seconds.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}
}

// PrometheusExporter owns every metric the pipeline records.
type PrometheusExporter struct {
	registry *prometheus.Registry

	chatRequests *prometheus.CounterVec
	chatLatency  *prometheus.HistogramVec

	contextBuilds       *prometheus.CounterVec
	contextBuildLatency prometheus.Histogram
	contextTokens       prometheus.Histogram

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	llmTokensUsed *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
}

// NewPrometheusExporter registers the pipeline metrics and returns the
// exporter ready to record.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{
		registry: registry,

		chatRequests: counterVec("chat", "requests_total",
			"Chat turns processed, by channel and outcome.", "channel", "status"),
		chatLatency: histogramVec("chat", "request_latency_seconds",
			"End-to-end chat turn latency.", cfg.LatencyBuckets, "channel"),

		contextBuilds: counterVec("context", "builds_total",
			"Memory context assemblies, by outcome.", "status"),
		contextBuildLatency: histogram("context", "build_latency_seconds",
			"Latency of successful context assemblies.", cfg.LatencyBuckets),
		contextTokens: histogram("context", "estimated_tokens",
			"Estimated token size of assembled contexts.",
			[]float64{64, 128, 256, 512, 1024, 2048, 4096, 8192}),

		cacheHits: counterVec("ai", "cache_hits_total",
			"Cache lookups served locally, by cache type.", "cache_type"),
		cacheMisses: counterVec("ai", "cache_misses_total",
			"Cache lookups that went to the provider, by cache type.", "cache_type"),

		llmTokensUsed: counterVec("ai", "llm_tokens_total",
			"Provider-reported token consumption.", "model", "token_type"),
		llmLatency: histogramVec("ai", "llm_latency_seconds",
			"Completion call latency.", cfg.LatencyBuckets, "model", "provider"),
	}

	registry.MustRegister(
		e.chatRequests, e.chatLatency,
		e.contextBuilds, e.contextBuildLatency, e.contextTokens,
		e.cacheHits, e.cacheMisses,
		e.llmTokensUsed, e.llmLatency,
	)
	return e
}

// RecordChatRequest counts one chat turn and its latency.
func (e *PrometheusExporter) RecordChatRequest(channel string, latency time.Duration, success bool) {
	e.chatRequests.WithLabelValues(channel, outcome(success)).Inc()
	e.chatLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// RecordContextBuild counts one context assembly. Latency and token
// size are only sampled for successful builds; failed builds produce
// no usable context to measure.
func (e *PrometheusExporter) RecordContextBuild(latency time.Duration, estimatedTokens int, success bool) {
	e.contextBuilds.WithLabelValues(outcome(success)).Inc()
	if success {
		e.contextBuildLatency.Observe(latency.Seconds())
		e.contextTokens.Observe(float64(estimatedTokens))
	}
}

// RecordCacheHit counts a locally served cache lookup.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss counts a lookup that fell through to the provider.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordLLMTokens adds provider-reported token usage. tokenType is
// "prompt" or "completion".
func (e *PrometheusExporter) RecordLLMTokens(model, tokenType string, count int) {
	e.llmTokensUsed.WithLabelValues(model, tokenType).Add(float64(count))
}

// RecordLLMLatency samples one completion call's duration.
func (e *PrometheusExporter) RecordLLMLatency(model, provider string, latency time.Duration) {
	e.llmLatency.WithLabelValues(model, provider).Observe(latency.Seconds())
}

// ExportText renders the current metrics in the text exposition
// format, for debug dumps outside the scrape path.
func (e *PrometheusExporter) ExportText() (string, error) {
	families, err := e.registry.Gather()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// GetHandler returns the scrape handler for mounting on a router.
func (e *PrometheusExporter) GetHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP lets the exporter itself be mounted as an http.Handler.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.GetHandler().ServeHTTP(w, r)
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogramVec(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}
