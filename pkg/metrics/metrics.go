// Package metrics defines the Prometheus collectors for the video Q&A
// services and exposes a scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	AnswersTotal      *prometheus.CounterVec
	AnswerLatency     *prometheus.HistogramVec
	StreamTokensTotal prometheus.Counter
	StreamsAbandoned  prometheus.Counter
	SummariesTotal    *prometheus.CounterVec
	PassagesRetrieved prometheus.Histogram
	CacheHitsTotal    prometheus.Counter
	CacheMissesTotal  prometheus.Counter

	IngestTotal    *prometheus.CounterVec
	IngestDuration prometheus.Histogram
	ChunksIndexed  prometheus.Counter
	ExecSlotsInUse prometheus.Gauge
	CircuitBreaker *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in services and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		AnswersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vqa_answers_total",
			Help: "Answers by mode (batch, stream) and outcome (hit, miss, error).",
		}, []string{"mode", "outcome"}),
		AnswerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vqa_answer_latency_seconds",
			Help:    "Time to a finished answer, by mode and cache status.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode", "cache_status"}),
		StreamTokensTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vqa_stream_tokens_total",
			Help: "Tokens forwarded to streaming clients.",
		}),
		StreamsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vqa_streams_abandoned_total",
			Help: "Streams closed before their terminal chunk.",
		}),
		SummariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vqa_summaries_total",
			Help: "Summaries by length and outcome (hit, miss, empty, error).",
		}, []string{"length", "outcome"}),
		PassagesRetrieved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vqa_passages_retrieved",
			Help:    "Passages returned per retrieval.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 64, 256, 1024},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vqa_cache_hits_total",
			Help: "Response cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vqa_cache_misses_total",
			Help: "Response cache misses.",
		}),
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vqa_ingest_total",
			Help: "Ingest calls by outcome (indexed, skipped, error).",
		}, []string{"outcome"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vqa_ingest_duration_seconds",
			Help:    "Wall time of a full ingest pipeline run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vqa_chunks_indexed_total",
			Help: "Transcript chunks written to the index.",
		}),
		ExecSlotsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vqa_media_workers_busy",
			Help: "Media worker slots currently running yt-dlp or ffmpeg.",
		}),
		CircuitBreaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
			m.AnswersTotal, m.AnswerLatency, m.StreamTokensTotal, m.StreamsAbandoned,
			m.SummariesTotal, m.PassagesRetrieved, m.CacheHitsTotal, m.CacheMissesTotal,
			m.IngestTotal, m.IngestDuration, m.ChunksIndexed, m.ExecSlotsInUse,
			m.CircuitBreaker,
		)
	}
	return m
}

// Handler returns the scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) ObserveAnswer(mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(mode, outcome).Inc()
	if outcome == "error" {
		return
	}
	m.AnswerLatency.WithLabelValues(mode, outcome).Observe(seconds)
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) ObservePassages(n int) {
	if m == nil {
		return
	}
	m.PassagesRetrieved.Observe(float64(n))
}

func (m *Metrics) ObserveStreamToken() {
	if m == nil {
		return
	}
	m.StreamTokensTotal.Inc()
}

func (m *Metrics) ObserveStreamAbandoned() {
	if m == nil {
		return
	}
	m.StreamsAbandoned.Inc()
}

func (m *Metrics) ObserveSummary(length, outcome string) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(length, outcome).Inc()
}

func (m *Metrics) ObserveIngest(outcome string, seconds float64, chunks int) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(outcome).Inc()
	if outcome == "indexed" {
		m.IngestDuration.Observe(seconds)
		m.ChunksIndexed.Add(float64(chunks))
	}
}

// WorkerBusy adjusts the media worker gauge by delta.
func (m *Metrics) WorkerBusy(delta float64) {
	if m == nil {
		return
	}
	m.ExecSlotsInUse.Add(delta)
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreaker.WithLabelValues(name).Set(float64(state))
}
