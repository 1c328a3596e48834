package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uwr_encoding_jobs_processed_total",
		Help: "Total number of encoding jobs processed, by outcome",
	}, []string{"outcome"})

	EncodeStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "uwr_encode_stage_duration_seconds",
		Help:    "Duration of encode pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "uwr_encoding_queue_depth",
		Help: "Number of jobs in the in-memory queue, by status",
	}, []string{"status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "uwr_encoding_active_workers",
		Help: "Number of jobs currently being processed",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uwr_encoding_retry_total",
		Help: "Total number of encode retries, by attempt",
	}, []string{"attempt"})

	FeedSlotsFilledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uwr_feed_slots_filled_total",
		Help: "Feed slots filled, by serving pool",
	}, []string{"pool"})

	FeedSlotsUnfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uwr_feed_slots_unfilled_total",
		Help: "Feed slots omitted because every pool was exhausted",
	})

	FeedPoolFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uwr_feed_pool_fallback_total",
		Help: "Fallbacks away from an exhausted or failed pool",
	}, []string{"from"})

	FeedGenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uwr_feed_generation_duration_seconds",
		Help:    "Duration of feed generation requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})
)
