// Package metrics defines the Prometheus metrics exported on /metrics.
// Every Record method is safe to call on a nil *Metrics so components can be
// constructed without a registry in tests and in the ingest CLI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Chat metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatDurationSeconds *prometheus.HistogramVec
	ClassifierHitsTotal *prometheus.CounterVec

	// Retrieval metrics
	RetrievalDurationSeconds *prometheus.HistogramVec
	RetrievalErrorsTotal     *prometheus.CounterVec

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec
	LLMTokensTotal     *prometheus.CounterVec
	LLMFallbackTotal   *prometheus.CounterVec

	// Document metrics
	DocumentsTotal        *prometheus.CounterVec
	ArchiveUploadsTotal   *prometheus.CounterVec
	RetentionDeletedTotal prometheus.Counter

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
	RateLimiterActive  *prometheus.GaugeVec

	// Ingest metrics
	IngestChunksTotal *prometheus.CounterVec
	IngestFilesTotal  *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_chat_requests_total",
				Help: "Total chat requests by routed intent and outcome",
			},
			[]string{"intent", "outcome"}, // outcome: answered, generated, insufficient, unknown_form, error
		),

		ChatDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmutt_chat_duration_seconds",
				Help:    "End-to-end chat latency by intent",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
			},
			[]string{"intent"},
		),

		ClassifierHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_classifier_hits_total",
				Help: "Keyword classifier matches by form code",
			},
			[]string{"form"},
		),

		RetrievalDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmutt_retrieval_duration_seconds",
				Help:    "Passage retrieval latency by backend",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"backend"}, // backend: qdrant, chromem, bm25, hybrid
		),

		RetrievalErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_retrieval_errors_total",
				Help: "Passage retrieval failures by backend",
			},
			[]string{"backend"},
		),

		LLMRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_llm_requests_total",
				Help: "LLM calls by provider, stage and status",
			},
			[]string{"provider", "stage", "status"}, // stage: advisor, extractor; status: success or error type
		),

		LLMDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmutt_llm_duration_seconds",
				Help:    "LLM call latency by provider and stage",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"provider", "stage"},
		),

		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_llm_tokens_total",
				Help: "Tokens consumed by provider, stage and direction",
			},
			[]string{"provider", "stage", "direction"}, // direction: input, output
		),

		LLMFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_llm_fallback_total",
				Help: "Provider failovers by source, target and stage",
			},
			[]string{"from", "to", "stage"},
		),

		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_documents_total",
				Help: "Rendered documents by form, mode and outcome",
			},
			[]string{"form", "mode", "outcome"}, // mode: file, stream
		),

		ArchiveUploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_archive_uploads_total",
				Help: "Generated documents mirrored to object storage by status",
			},
			[]string{"status"},
		),

		RetentionDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kmutt_retention_deleted_total",
				Help: "Generated documents removed by the retention sweeper",
			},
		),

		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_http_errors_total",
				Help: "HTTP error responses by type and route",
			},
			[]string{"error_type", "route"},
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_rate_limiter_dropped_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limiter_type"},
		),

		RateLimiterActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmutt_rate_limiter_active_keys",
				Help: "Keys currently tracked by a keyed rate limiter",
			},
			[]string{"limiter_type"},
		),

		IngestChunksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_ingest_chunks_total",
				Help: "Chunks written by the ingestion pipeline by store",
			},
			[]string{"store"}, // store: dense, sparse
		),

		IngestFilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmutt_ingest_files_total",
				Help: "Catalog PDFs processed by status",
			},
			[]string{"status"},
		),
	}
}

// RecordChat records a completed chat request
func (m *Metrics) RecordChat(intent, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(intent, outcome).Inc()
	m.ChatDurationSeconds.WithLabelValues(intent).Observe(duration)
}

// RecordClassifierHit records a keyword match for a form
func (m *Metrics) RecordClassifierHit(form string) {
	if m == nil {
		return
	}
	m.ClassifierHitsTotal.WithLabelValues(form).Inc()
}

// RecordRetrieval records a retrieval call; err marks it failed
func (m *Metrics) RecordRetrieval(backend string, duration float64, err error) {
	if m == nil {
		return
	}
	m.RetrievalDurationSeconds.WithLabelValues(backend).Observe(duration)
	if err != nil {
		m.RetrievalErrorsTotal.WithLabelValues(backend).Inc()
	}
}

// RecordLLMRequest records a single LLM call
func (m *Metrics) RecordLLMRequest(provider, stage, status string, duration float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, stage, status).Inc()
	m.LLMDurationSeconds.WithLabelValues(provider, stage).Observe(duration)
}

// RecordLLMTokens records token usage reported by a provider
func (m *Metrics) RecordLLMTokens(provider, stage string, input, output int64) {
	if m == nil {
		return
	}
	if input > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, stage, "input").Add(float64(input))
	}
	if output > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, stage, "output").Add(float64(output))
	}
}

// RecordLLMFallback records a failover between providers
func (m *Metrics) RecordLLMFallback(from, to, stage string) {
	if m == nil {
		return
	}
	m.LLMFallbackTotal.WithLabelValues(from, to, stage).Inc()
}

// RecordDocument records a render attempt
func (m *Metrics) RecordDocument(form, mode, outcome string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(form, mode, outcome).Inc()
}

// RecordArchiveUpload records an R2 mirror attempt
func (m *Metrics) RecordArchiveUpload(status string) {
	if m == nil {
		return
	}
	m.ArchiveUploadsTotal.WithLabelValues(status).Inc()
}

// RecordRetentionDeleted records documents removed by the sweeper
func (m *Metrics) RecordRetentionDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionDeletedTotal.Add(float64(n))
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, route string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, route).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetRateLimiterActive sets the number of tracked keys
func (m *Metrics) SetRateLimiterActive(limiterType string, n int) {
	if m == nil {
		return
	}
	m.RateLimiterActive.WithLabelValues(limiterType).Set(float64(n))
}

// RecordIngestChunks records chunks written to a store
func (m *Metrics) RecordIngestChunks(store string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IngestChunksTotal.WithLabelValues(store).Add(float64(n))
}

// RecordIngestFile records one processed catalog PDF
func (m *Metrics) RecordIngestFile(status string) {
	if m == nil {
		return
	}
	m.IngestFilesTotal.WithLabelValues(status).Inc()
}
