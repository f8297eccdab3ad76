// Package metrics provides Prometheus metrics export for the retrieval
// engine and the ingestion pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports engine metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Retrieval metrics
	retrievalLatency  *prometheus.HistogramVec
	retrievalRequests *prometheus.CounterVec
	candidatePoolSize prometheus.Histogram

	// Write path metrics
	chunkWrites      *prometheus.CounterVec
	embeddingLatency prometheus.Histogram

	// Ingestion metrics
	ingestedChunks *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.retrievalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lyricmem",
			Subsystem: "engine",
			Name:      "retrieval_latency_seconds",
			Help:      "Retrieval request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"mode"},
	)

	e.retrievalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lyricmem",
			Subsystem: "engine",
			Name:      "retrieval_requests_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"mode", "status"},
	)

	e.candidatePoolSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lyricmem",
			Subsystem: "engine",
			Name:      "candidate_pool_size",
			Help:      "Number of candidates surviving the metadata prefilter",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200, 300},
		},
	)

	e.chunkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lyricmem",
			Subsystem: "engine",
			Name:      "chunk_writes_total",
			Help:      "Total number of chunk writes",
		},
		[]string{"vector_status", "status"},
	)

	e.embeddingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lyricmem",
			Subsystem: "ai",
			Name:      "embedding_latency_seconds",
			Help:      "Embedding request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.ingestedChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lyricmem",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks produced by ingestion",
		},
		[]string{"format"},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lyricmem",
			Subsystem: "store",
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lyricmem",
			Subsystem: "store",
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	registry.MustRegister(
		e.retrievalLatency,
		e.retrievalRequests,
		e.candidatePoolSize,
		e.chunkWrites,
		e.embeddingLatency,
		e.ingestedChunks,
		e.cacheHits,
		e.cacheMisses,
	)

	return e
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) ObserveRetrieval(mode, status string, elapsed time.Duration) {
	e.retrievalLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
	e.retrievalRequests.WithLabelValues(mode, status).Inc()
}

func (e *Exporter) ObserveCandidatePool(size int) {
	e.candidatePoolSize.Observe(float64(size))
}

func (e *Exporter) CountChunkWrite(vectorStatus, status string) {
	e.chunkWrites.WithLabelValues(vectorStatus, status).Inc()
}

func (e *Exporter) ObserveEmbedding(elapsed time.Duration) {
	e.embeddingLatency.Observe(elapsed.Seconds())
}

func (e *Exporter) CountIngestedChunks(format string, n int) {
	e.ingestedChunks.WithLabelValues(format).Add(float64(n))
}

func (e *Exporter) CountCacheHit(cache string) {
	e.cacheHits.WithLabelValues(cache).Inc()
}

func (e *Exporter) CountCacheMiss(cache string) {
	e.cacheMisses.WithLabelValues(cache).Inc()
}
