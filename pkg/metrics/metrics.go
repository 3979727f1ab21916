package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Analysis pipeline metrics
	AnalysisRunsTotal *prometheus.CounterVec
	AnalysisDuration  *prometheus.HistogramVec
	FramesAnalyzed    *prometheus.CounterVec
	FramesSkipped     *prometheus.CounterVec
	FacesDetected     prometheus.Counter
	SentinelFrames    prometheus.Counter

	// Audio metrics
	EnergyWindowsComputed prometheus.Counter
	FunctionalsDuration   prometheus.Histogram

	// Chunker metrics
	ChunkerRetries        prometheus.Counter
	ChunkerOversizedFinal prometheus.Counter
	ChunksProduced        prometheus.Histogram
	ChunkBytes            prometheus.Histogram

	// Transcription metrics
	TranscriptionsTotal   *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	TranscriptionMerges   prometheus.Counter

	// Messaging metrics
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
)

// Init builds and registers all instruments. Safe to call more than once.
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		AnalysisRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engagement_analysis_runs_total",
				Help: "Total number of session analysis runs by outcome",
			},
			[]string{"outcome"},
		)

		AnalysisDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engagement_analysis_duration_seconds",
				Help:    "Wall-clock duration of full session analysis runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"role"},
		)

		FramesAnalyzed = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engagement_frames_analyzed_total",
				Help: "Total number of frames that produced a timeline entry",
			},
			[]string{"role"},
		)

		FramesSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engagement_frames_skipped_total",
				Help: "Total number of frames dropped due to decode failure",
			},
			[]string{"role"},
		)

		FacesDetected = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_faces_detected_total",
				Help: "Total number of faces detected across all frames",
			},
		)

		SentinelFrames = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_sentinel_frames_total",
				Help: "Total number of frames with no detected face",
			},
		)

		EnergyWindowsComputed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_energy_windows_total",
				Help: "Total number of per-second voice energy windows computed",
			},
		)

		FunctionalsDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engagement_functionals_duration_seconds",
				Help:    "Duration of whole-clip acoustic functionals extraction",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		)

		ChunkerRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_chunker_retries_total",
				Help: "Total number of shrink-retry passes in the audio chunker",
			},
		)

		ChunkerOversizedFinal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_chunker_oversized_accepted_total",
				Help: "Chunks accepted over the byte ceiling at minimum segment duration",
			},
		)

		ChunksProduced = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engagement_chunks_produced",
				Help:    "Number of chunks produced per segmentation run",
				Buckets: prometheus.LinearBuckets(1, 2, 10),
			},
		)

		ChunkBytes = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engagement_chunk_bytes",
				Help:    "Byte size of produced audio chunks",
				Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 8),
			},
		)

		TranscriptionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engagement_transcriptions_total",
				Help: "Total number of chunk transcription calls by outcome",
			},
			[]string{"outcome"},
		)

		TranscriptionDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engagement_transcription_duration_seconds",
				Help:    "Duration of individual chunk transcription calls",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		)

		TranscriptionMerges = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_transcription_merges_total",
				Help: "Total number of multi-chunk transcript merges",
			},
		)

		EventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engagement_events_published_total",
				Help: "Total number of AMQP events published by type",
			},
			[]string{"event"},
		)

		PublishErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engagement_publish_errors_total",
				Help: "Total number of failed AMQP publish attempts",
			},
		)

		registry.MustRegister(
			AnalysisRunsTotal,
			AnalysisDuration,
			FramesAnalyzed,
			FramesSkipped,
			FacesDetected,
			SentinelFrames,
			EnergyWindowsComputed,
			FunctionalsDuration,
			ChunkerRetries,
			ChunkerOversizedFinal,
			ChunksProduced,
			ChunkBytes,
			TranscriptionsTotal,
			TranscriptionDuration,
			TranscriptionMerges,
			EventsPublished,
			PublishErrors,
		)

		logger.Debug("Prometheus metrics registered")
	})
}

// GetRegistry returns the registry, initializing with a silent logger if needed.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		Init(logrus.New())
	}
	return registry
}

// Handler returns an HTTP handler serving the metrics registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// ObserveTranscription returns a closure that records the duration and
// outcome of one transcription call when invoked.
func ObserveTranscription() func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		TranscriptionDuration.Observe(time.Since(start).Seconds())
		TranscriptionsTotal.WithLabelValues(outcome).Inc()
	}
}
