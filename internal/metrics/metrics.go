package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and model Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragserve",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "embedding_errors_total",
			Help:      "Embedding request errors by type",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "documents_ingested_total",
			Help:      "Documents processed by the ingestion pipeline",
		},
		[]string{"source", "status"}, // source: file|url|crawl, status: ok|error
	)

	ChunksIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "chunks_indexed_total",
			Help:      "Chunks upserted into tenant vector indexes",
		},
		[]string{"source"},
	)

	CrawlPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "crawl_pages_total",
			Help:      "Pages discovered and processed by the site crawler",
		},
		[]string{"status"}, // ingested|skipped|error
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"}, // hit|miss
	)

	QuestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragserve",
			Name:      "questions_total",
			Help:      "Questions answered",
		},
		[]string{"mode", "status"}, // mode: sync|stream
	)
)

var registered bool

// Register registers pipeline metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingErrorsTotal)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(DocumentsIngestedTotal)
	prometheus.MustRegister(ChunksIndexedTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(CrawlPagesTotal)
	prometheus.MustRegister(QuestionsTotal)
	registered = true
}
