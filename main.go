package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/analysis"
	"engagement-server/pkg/audio"
	"engagement-server/pkg/chunker"
	"engagement-server/pkg/config"
	"engagement-server/pkg/facial"
	"engagement-server/pkg/media"
	"engagement-server/pkg/messaging"
	"engagement-server/pkg/metrics"
	"engagement-server/pkg/session"
	"engagement-server/pkg/stt"
	"engagement-server/pkg/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  %[1]s analyze <session-id>     run the engagement analysis pipeline for a session
  %[1]s transcribe <session-id>  transcribe the presenter audio track of a session
`, os.Args[0])
	os.Exit(2)
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.WithField("version", version.Version).Info("Engagement analysis server starting")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.LogFormat == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetLevel(cfg.LogLevel)
	cfg.LogStartup(logger)

	if len(os.Args) != 3 {
		usage()
	}
	command, sessionID := os.Args[1], os.Args[2]

	metrics.Init(logger)
	if cfg.MetricsEnabled {
		go serveMetrics(logger, cfg.MetricsPort)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := session.NewStore(logger, cfg.SessionRoot)
	if err != nil {
		logger.Fatalf("Failed to open session store: %v", err)
	}
	ffmpeg := media.NewFFmpeg(logger, cfg.FFmpegPath, cfg.FFprobePath, cfg.AudioSampleRate)

	publisher := messaging.NewPublisher(logger, cfg.AMQPUrl, cfg.AMQPExchange)
	if err := publisher.Connect(); err != nil {
		// Messaging is best-effort; the pipeline runs without a broker.
		logger.WithError(err).Warn("AMQP connection failed, events will not be published")
	}
	defer publisher.Close()

	switch command {
	case "analyze":
		runAnalysis(ctx, logger, cfg, store, ffmpeg, publisher, sessionID)
	case "transcribe":
		runTranscription(ctx, logger, cfg, store, ffmpeg, publisher, sessionID)
	default:
		usage()
	}
}

func runAnalysis(ctx context.Context, logger *logrus.Logger, cfg *config.Configuration, store *session.Store, ffmpeg *media.FFmpeg, publisher *messaging.Publisher, sessionID string) {
	detectors := func() (facial.Detector, error) {
		return facial.NewCLIDetector(logger, cfg.DetectorBinary, cfg.MaxFaces)
	}
	functionals := audio.NewSmileExtractor(logger, cfg.SmileBinary, cfg.SmileConfigPath)

	analyzer := analysis.NewAnalyzer(logger, cfg, store, ffmpeg, detectors, functionals, publisher)
	result, err := analyzer.Run(ctx, sessionID)
	if err != nil {
		logger.Fatalf("Analysis failed for session %s: %v", sessionID, err)
	}

	logger.WithFields(logrus.Fields{
		"session_id":       sessionID,
		"artifact":         store.ArtifactPath(sessionID),
		"dominant_emotion": result.Summary.PresenterDominantEmotion,
		"engagement":       result.Summary.EngagementOverall,
		"voice_energy":     result.Summary.VoiceEnergyLevel,
		"presenter_frames": len(result.PresenterTimeline),
	}).Info("Analysis artifact written")
}

func runTranscription(ctx context.Context, logger *logrus.Logger, cfg *config.Configuration, store *session.Store, ffmpeg *media.FFmpeg, publisher *messaging.Publisher, sessionID string) {
	videoPath, err := store.PresenterVideo(sessionID)
	if err != nil {
		logger.Fatalf("Session %s has no presenter recording: %v", sessionID, err)
	}

	wavFile, err := os.CreateTemp("", "transcribe-*.wav")
	if err != nil {
		logger.Fatalf("Failed to create temp audio file: %v", err)
	}
	wavPath := wavFile.Name()
	wavFile.Close()
	defer os.Remove(wavPath)

	if err := ffmpeg.ExtractAudio(ctx, videoPath, wavPath); err != nil {
		logger.Fatalf("Audio extraction failed for session %s: %v", sessionID, err)
	}

	provider := stt.NewWhisperProvider(logger, cfg)
	if err := provider.Initialize(); err != nil {
		logger.Fatalf("Failed to initialize transcription provider: %v", err)
	}
	splitter := chunker.New(logger, ffmpeg, cfg.ChunkByteCeiling, cfg.DefaultSegmentDuration, cfg.MinSegmentDuration, cfg.MaxSegmentDuration)
	service := stt.NewService(logger, cfg, splitter, provider)

	result, err := service.Transcribe(ctx, wavPath)
	if err != nil {
		logger.Fatalf("Transcription failed for session %s: %v", sessionID, err)
	}
	publisher.PublishTranscript(sessionID, *result)

	logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"segments":   len(result.Segments),
		"characters": len(result.Text),
	}).Info("Transcription complete")
	fmt.Println(result.Text)
}

func serveMetrics(logger *logrus.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.WithField("addr", addr).Info("Serving Prometheus metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.WithError(err).Warn("Metrics endpoint terminated")
	}
}
