// Package metrics содержит метрики Prometheus сервиса поиска.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "photo_search"

var (
	// EmbeddingFailures считает изображения, пропущенные при перестроении, по стадии ошибки.
	EmbeddingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Images skipped during index rebuild, by failure stage",
		},
		[]string{"stage"},
	)

	Rebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_rebuilds_total",
			Help:      "Index rebuilds by outcome",
		},
		[]string{"status"},
	)

	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Duration of successful index rebuilds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	IndexedImages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexed_images",
			Help:      "Number of images currently in the vector index",
		},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of search requests including embedding",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// SearchCache считает обращения к кэшу поиска: hit, miss, error.
	SearchCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_requests_total",
			Help:      "Search cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status",
		},
		[]string{"route", "method", "status"},
	)
)
