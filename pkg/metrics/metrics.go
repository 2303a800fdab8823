// Package metrics 定义了向量化流程的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmbeddingAttempts 按结果统计 embedding 调用次数：success / transient / permanent。
	EmbeddingAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smarthomes",
		Subsystem: "embedding",
		Name:      "attempts_total",
		Help:      "Embedding provider calls by outcome.",
	}, []string{"outcome"})

	// EmbeddingLatency 是单次 embedding 调用的耗时。
	EmbeddingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smarthomes",
		Subsystem: "embedding",
		Name:      "request_seconds",
		Help:      "Latency of a single embedding provider call.",
		Buckets:   prometheus.DefBuckets,
	})

	// EmbeddingCacheHits 统计命中缓存、未调用服务的次数。
	EmbeddingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "smarthomes",
		Subsystem: "embedding",
		Name:      "cache_hits_total",
		Help:      "Embeddings served from cache.",
	})

	// RecordFailures 按记录类型统计永久失败的记录数。
	RecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smarthomes",
		Subsystem: "pipeline",
		Name:      "record_failures_total",
		Help:      "Records that permanently failed embedding.",
	}, []string{"kind"})

	// DocumentsWritten 按索引统计写入成功的文档数。
	DocumentsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smarthomes",
		Subsystem: "indexer",
		Name:      "documents_written_total",
		Help:      "Documents accepted by the vector store.",
	}, []string{"index"})

	// DocumentsRejected 按索引统计被拒绝的文档数。
	DocumentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smarthomes",
		Subsystem: "indexer",
		Name:      "documents_rejected_total",
		Help:      "Documents rejected by the vector store during bulk writes.",
	}, []string{"index"})

	// HTTPRequests 按方法、路由和状态码统计 HTTP 请求数。
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smarthomes",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPLatency 是 HTTP 请求的处理耗时。
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "smarthomes",
		Subsystem: "http",
		Name:      "request_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)
