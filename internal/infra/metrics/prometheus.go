package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_sampling_jobs_processed_total",
		Help: "Total number of sampling jobs processed, by final status",
	}, []string{"status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_sampling_stage_duration_seconds",
		Help:    "Duration of each sampling pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_frames_decoded_total",
		Help: "Total number of frames decoded across all sampling passes",
	})

	FramesSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_frames_saved_total",
		Help: "Total number of sampled frames written, by image format",
	}, []string{"format"})

	SamplingOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_sampling_outcomes_total",
		Help: "Sampling pass outcomes, by status and failure reason",
	}, []string{"status", "reason"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_sampling_active_workers",
		Help: "Number of workers currently running a sampling job",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_sampling_retry_total",
		Help: "Total number of sampling job retries",
	}, []string{"attempt"})
)
