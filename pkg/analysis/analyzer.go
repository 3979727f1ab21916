package analysis

import (
	"context"
	"image"
	"os"
	"sync"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/audio"
	"engagement-server/pkg/config"
	"engagement-server/pkg/errors"
	"engagement-server/pkg/facial"
	"engagement-server/pkg/media"
	"engagement-server/pkg/metrics"
	"engagement-server/pkg/session"
)

// MediaProcessor is the decode/transcode collaborator the analyzer drives.
type MediaProcessor interface {
	ExtractFrames(ctx context.Context, videoPath, outDir string, fps int) ([]string, error)
	ExtractAudio(ctx context.Context, videoPath, wavPath string) error
}

// DetectorFactory acquires a fresh landmark detector handle. Each analysis
// task owns its handle exclusively and releases it before completing.
type DetectorFactory func() (facial.Detector, error)

// EventPublisher receives completion events after the artifact is written.
type EventPublisher interface {
	PublishAnalysisComplete(sessionID, artifactPath string)
}

// Analyzer runs the full engagement analysis pipeline for one session.
type Analyzer struct {
	logger      *logrus.Logger
	store       *session.Store
	processor   MediaProcessor
	detectors   DetectorFactory
	functionals audio.FunctionalsExtractor
	publisher   EventPublisher

	fps           int
	sampleRate    int
	maxVideoBytes int64
	now           func() time.Time
}

// NewAnalyzer wires the pipeline's collaborators. publisher may be nil.
func NewAnalyzer(logger *logrus.Logger, cfg *config.Configuration, store *session.Store, processor MediaProcessor, detectors DetectorFactory, functionals audio.FunctionalsExtractor, publisher EventPublisher) *Analyzer {
	a := &Analyzer{
		logger:      logger,
		store:       store,
		processor:   processor,
		detectors:   detectors,
		functionals: functionals,
		publisher:   publisher,
		fps:         1,
		sampleRate:  16000,
		now:         time.Now,
	}
	if cfg != nil {
		if cfg.FrameRate > 0 {
			a.fps = cfg.FrameRate
		}
		if cfg.AudioSampleRate > 0 {
			a.sampleRate = cfg.AudioSampleRate
		}
		a.maxVideoBytes = cfg.MaxUploadSize
	}
	metrics.Init(logger)
	return a
}

// Run executes one full analysis for a session and atomically persists the
// resulting artifact. Video and audio analysis run concurrently; a fatal
// error in either aborts the run without writing an artifact.
func (a *Analyzer) Run(ctx context.Context, sessionID string) (*SessionAnalysis, error) {
	start := time.Now()
	log := a.logger.WithField("session_id", sessionID)

	presenterPath, err := a.store.PresenterVideo(sessionID)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("precondition_failed").Inc()
		return nil, err
	}
	if err := a.checkSize(presenterPath); err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("precondition_failed").Inc()
		return nil, err
	}

	// Invalidate before any processing so a reader never sees a stale
	// artifact next to a new recording.
	if err := a.store.InvalidateAnalysis(sessionID); err != nil {
		return nil, err
	}

	audiencePath, hasAudience := a.store.AudienceVideo(sessionID)
	if hasAudience {
		if err := a.checkSize(audiencePath); err != nil {
			metrics.AnalysisRunsTotal.WithLabelValues("precondition_failed").Inc()
			return nil, err
		}
	}

	var (
		wg                sync.WaitGroup
		presenterTimeline []facial.FrameMetric
		audienceTimeline  []facial.FrameMetric
		energySeries      []float64
		voiceMetrics      audio.VoiceMetrics
		videoErr          error
		audioErr          error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		presenterTimeline, videoErr = a.analyzeVideo(ctx, presenterPath, "presenter")
		if videoErr != nil || !hasAudience {
			return
		}
		audienceTimeline, videoErr = a.analyzeVideo(ctx, audiencePath, "audience")
	}()
	go func() {
		defer wg.Done()
		energySeries, voiceMetrics, audioErr = a.analyzeAudio(ctx, presenterPath)
	}()
	wg.Wait()

	if videoErr != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("video_failed").Inc()
		return nil, videoErr
	}
	if audioErr != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("audio_failed").Inc()
		return nil, audioErr
	}

	summary := BuildSummary(presenterTimeline, audienceTimeline, energySeries, voiceMetrics, a.now())

	voiceTimeline := make([]float64, len(energySeries))
	for i, e := range energySeries {
		voiceTimeline[i] = audio.Round4(e)
	}
	if audienceTimeline == nil {
		audienceTimeline = []facial.FrameMetric{}
	}

	result := &SessionAnalysis{
		SessionID:         sessionID,
		Summary:           summary,
		PresenterTimeline: presenterTimeline,
		AudienceTimeline:  audienceTimeline,
		VoiceTimeline:     voiceTimeline,
	}

	artifactPath, err := a.store.WriteAnalysis(sessionID, result)
	if err != nil {
		metrics.AnalysisRunsTotal.WithLabelValues("write_failed").Inc()
		return nil, err
	}

	if a.publisher != nil {
		a.publisher.PublishAnalysisComplete(sessionID, artifactPath)
	}

	metrics.AnalysisRunsTotal.WithLabelValues("success").Inc()
	log.WithFields(logrus.Fields{
		"presenter_frames": len(presenterTimeline),
		"audience_frames":  len(audienceTimeline),
		"voice_windows":    len(voiceTimeline),
		"elapsed":          time.Since(start).String(),
	}).Info("Session analysis complete")
	return result, nil
}

// checkSize enforces the recording size ceiling before any processing
// starts. A zero limit disables the check.
func (a *Analyzer) checkSize(videoPath string) error {
	if a.maxVideoBytes <= 0 {
		return nil
	}
	info, err := os.Stat(videoPath)
	if err != nil {
		return errors.Wrap(err, "stat recording")
	}
	if info.Size() > a.maxVideoBytes {
		return errors.Wrap(errors.ErrInvalidInput, "recording exceeds maximum allowed size").
			WithFields(map[string]interface{}{
				"video": videoPath,
				"size":  info.Size(),
				"limit": a.maxVideoBytes,
			})
	}
	return nil
}

// analyzeVideo samples one video into a classified frame timeline. The
// detector handle is acquired here and always released, including when a
// frame decode fails mid-run.
func (a *Analyzer) analyzeVideo(ctx context.Context, videoPath, role string) ([]facial.FrameMetric, error) {
	taskStart := time.Now()
	frameDir, err := os.MkdirTemp("", "frames-*")
	if err != nil {
		return nil, errors.Wrap(err, "creating frame directory")
	}
	defer os.RemoveAll(frameDir)

	frames, err := a.processor.ExtractFrames(ctx, videoPath, frameDir, a.fps)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return []facial.FrameMetric{}, nil
	}

	detector, err := a.detectors()
	if err != nil {
		return nil, errors.Wrap(err, "acquiring face detector")
	}
	defer detector.Close()

	timeline := make([]facial.FrameMetric, 0, len(frames))
	for index, framePath := range frames {
		timestamp := float64(index) / float64(a.fps)

		width, height, err := frameDimensions(framePath)
		if err != nil {
			// One bad frame never aborts the session; it is simply
			// absent from the timeline.
			metrics.FramesSkipped.WithLabelValues(role).Inc()
			a.logger.WithError(err).WithFields(logrus.Fields{
				"role":  role,
				"frame": index,
			}).Warn("Skipping undecodable frame")
			continue
		}

		faces, err := detector.DetectFaces(ctx, framePath)
		if err != nil {
			metrics.FramesSkipped.WithLabelValues(role).Inc()
			a.logger.WithError(err).WithFields(logrus.Fields{
				"role":  role,
				"frame": index,
			}).Warn("Skipping frame after detector failure")
			continue
		}

		if len(faces) == 0 {
			metrics.SentinelFrames.Inc()
			timeline = append(timeline, facial.NewSentinelFrame(timestamp))
			continue
		}

		metrics.FacesDetected.Add(float64(len(faces)))
		smile, eye := facial.Measure(faces, width, height)
		// Classification sees the raw ratios; only the persisted scores
		// are rounded.
		entry := facial.NewFrameMetric(timestamp, smile, eye, len(faces))
		entry.SmileScore = audio.Round4(entry.SmileScore)
		entry.EyeOpenness = audio.Round4(entry.EyeOpenness)
		timeline = append(timeline, entry)
	}

	metrics.FramesAnalyzed.WithLabelValues(role).Add(float64(len(timeline)))
	metrics.AnalysisDuration.WithLabelValues(role).Observe(time.Since(taskStart).Seconds())
	return timeline, nil
}

// analyzeAudio extracts the presenter audio track once and derives both
// the per-second energy series and the whole-clip voice functionals from
// it. The intermediate WAV is removed before returning.
func (a *Analyzer) analyzeAudio(ctx context.Context, videoPath string) ([]float64, audio.VoiceMetrics, error) {
	wavFile, err := os.CreateTemp("", "presenter-audio-*.wav")
	if err != nil {
		return nil, audio.VoiceMetrics{}, errors.Wrap(err, "creating audio temp file")
	}
	wavPath := wavFile.Name()
	wavFile.Close()
	defer os.Remove(wavPath)

	if err := a.processor.ExtractAudio(ctx, videoPath, wavPath); err != nil {
		return nil, audio.VoiceMetrics{}, err
	}

	samples, rate, err := media.DecodePCM(wavPath)
	if err != nil {
		return nil, audio.VoiceMetrics{}, errors.Wrap(errors.ErrMediaFailure, err.Error())
	}
	if rate <= 0 {
		rate = a.sampleRate
	}
	series := audio.EnergySeries(samples, rate)
	metrics.EnergyWindowsComputed.Add(float64(len(series)))

	raw, err := a.functionals.Functionals(ctx, wavPath)
	if err != nil {
		return nil, audio.VoiceMetrics{}, errors.Wrap(err, "extracting voice functionals")
	}
	return series, audio.NewVoiceMetrics(raw), nil
}

// frameDimensions reads only the image header to get pixel dimensions.
func frameDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
