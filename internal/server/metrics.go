package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/regionseg/internal/pipeline"
)

const metricsNamespace = "regionseg"

// Request kinds used as the "type" label.
const (
	kindImage     = "image"
	kindBatch     = "batch"
	kindWebSocket = "websocket"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	segmentRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "segment",
		Name:      "requests_total",
		Help:      "Segmentation requests by kind and outcome.",
	}, []string{"type", "status"})

	segmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "segment",
		Name:      "request_duration_seconds",
		Help:      "Segmentation request latency by kind.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"type"})

	segmentsReturned = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "segment",
		Name:      "segments_per_image",
		Help:      "Segments found per image.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"type"})

	segmentCoverage = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "segment",
		Name:      "coverage_ratio",
		Help:      "Fraction of valid pixels assigned to a segment.",
		Buckets:   []float64{.5, .75, .9, .95, .99, 1},
	}, []string{"type"})

	rateLimitHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Requests rejected by limit type (minute, hour, requests, data).",
	}, []string{"type"})

	uploadSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "upload_size_bytes",
		Help:      "Size of uploaded images.",
		Buckets:   prometheus.ExponentialBuckets(1024, 10, 6),
	})

	websocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "websocket",
		Name:      "active_connections",
		Help:      "Open WebSocket connections.",
	})

	websocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "WebSocket messages by direction (sent, received).",
	}, []string{"direction"})
)

// observeResult records per-request-kind result metrics. Engine-level
// counters are kept by the pipeline itself.
func observeResult(kind string, res *pipeline.SegmentationResult) {
	if res == nil {
		return
	}
	segmentsReturned.WithLabelValues(kind).Observe(float64(len(res.Segments)))
	segmentCoverage.WithLabelValues(kind).Observe(res.Coverage)
}
