package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics. All low-cardinality (no asset/camera/subscriber labels).

var (
	MediaProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_processed_total",
			Help: "Media assets driven to a terminal state, by outcome",
		},
		[]string{"outcome"},
	)

	MediaProcessingSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_processing_seconds",
			Help:    "End-to-end processing duration per asset",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	FramesSampledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frames_sampled_total",
			Help: "Frames yielded by the sampler across all assets",
		},
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_total",
			Help: "Normalized detections persisted, by canonical type",
		},
		[]string{"type"},
	)

	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Alerts created and broadcast, by severity",
		},
		[]string{"severity"},
	)

	ClaimConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claim_conflicts_total",
			Help: "Claim attempts rejected because another worker held the lease",
		},
	)

	QueueRedeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_redeliveries_total",
			Help: "Queue messages negatively acknowledged for redelivery",
		},
	)

	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Currently connected realtime subscribers",
		},
	)

	BroadcastDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Subscribers pruned for dead or saturated connections",
		},
	)
)

func RecordProcessed(outcome string, seconds float64) {
	MediaProcessedTotal.WithLabelValues(outcome).Inc()
	MediaProcessingSeconds.Observe(seconds)
}

func RecordDetection(detectionType string) {
	DetectionsTotal.WithLabelValues(detectionType).Inc()
}

func RecordAlertEmitted(severity string) {
	AlertsEmittedTotal.WithLabelValues(severity).Inc()
}
