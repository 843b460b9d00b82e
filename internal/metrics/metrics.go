package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plume_task_duration_seconds",
			Help:    "Task processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"task"},
	)

	TaskTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plume_task_total",
			Help: "Total number of tasks processed",
		},
		[]string{"task", "status"},
	)

	BackendCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plume_backend_calls_total",
			Help: "Total backend calls by outcome",
		},
		[]string{"backend", "status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plume_answer_confidence",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RetrievedChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plume_retrieved_chunks_count",
			Help:    "Number of knowledge chunks retrieved per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	WebSearchTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plume_web_search_triggered_total",
			Help: "Total number of web searches triggered",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plume_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plume_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "plume_documents_ingested_total",
			Help: "Total documents ingested",
		},
	)

	FeedbackRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plume_feedback_recorded_total",
			Help: "Total feedback records by kind",
		},
		[]string{"kind"},
	)
)

func Init() {
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(TaskTotal)
	prometheus.MustRegister(BackendCalls)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(RetrievedChunks)
	prometheus.MustRegister(WebSearchTriggered)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(FeedbackRecorded)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
