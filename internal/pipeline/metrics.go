package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/regionseg/internal/segment"
)

var (
	// Engine phase metrics
	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regionseg_phase_duration_seconds",
			Help:    "Duration of segmentation phases in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"phase"},
	)

	phaseSegments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regionseg_phase_segments",
			Help: "Live segments after the most recent completion of each phase",
		},
		[]string{"phase"},
	)

	// Per-image result metrics
	imagesSegmented = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regionseg_images_segmented_total",
			Help: "Total number of segmented images",
		},
	)

	segmentsPerImage = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regionseg_segments_per_image",
			Help:    "Number of final segments per image",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	mergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionseg_merges_total",
			Help: "Total number of segment merges per strategy",
		},
		[]string{"strategy"},
	)

	traceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regionseg_trace_failures_total",
			Help: "Total number of outside boundaries that could not be traced",
		},
	)
)

// metricsObserver records engine phases in Prometheus.
type metricsObserver struct{}

func (metricsObserver) PhaseDone(phase segment.Phase, elapsed time.Duration, segments int) {
	phaseDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
	phaseSegments.WithLabelValues(string(phase)).Set(float64(segments))
}

func observeResult(res *SegmentationResult) {
	imagesSegmented.Inc()
	segmentsPerImage.Observe(float64(len(res.Segments)))
	for strategy, n := range res.Stats.Merges {
		mergesTotal.WithLabelValues(strategy).Add(float64(n))
	}
	traceFailures.Add(float64(res.Stats.TraceFailures))
}
