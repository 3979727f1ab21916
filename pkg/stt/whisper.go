package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/chunker"
	"engagement-server/pkg/config"
	"engagement-server/pkg/metrics"
)

type whisperRunner func(ctx context.Context, cfg *config.Configuration, audioPath, outputDir string) error

// WhisperProvider transcribes audio files through a Whisper-compatible
// CLI. The binary may run locally or be a wrapper around a remote server;
// anything accepting Whisper CLI arguments works.
type WhisperProvider struct {
	logger    *logrus.Logger
	config    *config.Configuration
	runner    whisperRunner
	semaphore chan struct{}
}

// NewWhisperProvider builds a provider around the CLI referenced in the
// configuration, with an optional concurrency cap.
func NewWhisperProvider(logger *logrus.Logger, cfg *config.Configuration) *WhisperProvider {
	var semaphore chan struct{}
	if cfg.WhisperMaxConcurrent > 0 {
		semaphore = make(chan struct{}, cfg.WhisperMaxConcurrent)
	}
	metrics.Init(logger)
	return &WhisperProvider{
		logger:    logger,
		config:    cfg,
		runner:    defaultWhisperRunner,
		semaphore: semaphore,
	}
}

// Name returns the provider identifier.
func (p *WhisperProvider) Name() string {
	return "whisper"
}

// Initialize validates the configured binary before first use. A missing
// binary in PATH is only a warning: it may be provisioned at runtime.
func (p *WhisperProvider) Initialize() error {
	if p.config.WhisperBinary == "" {
		return fmt.Errorf("WHISPER_BINARY_PATH must be set")
	}
	if _, err := exec.LookPath(p.config.WhisperBinary); err != nil {
		p.logger.WithError(err).Warn("Whisper binary not found in PATH; transcription may fail at runtime")
	}
	p.logger.WithFields(logrus.Fields{
		"binary": p.config.WhisperBinary,
		"model":  p.config.WhisperModel,
		"format": p.config.WhisperOutputFormat,
	}).Info("Whisper provider initialized")
	return nil
}

// TranscribeFile runs the CLI over one audio file and parses its output.
func (p *WhisperProvider) TranscribeFile(ctx context.Context, audioPath string) (*chunker.TranscriptionResult, error) {
	if p.semaphore != nil {
		select {
		case p.semaphore <- struct{}{}:
			defer func() { <-p.semaphore }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	outputDir, err := os.MkdirTemp("", "whisper-output-*")
	if err != nil {
		return nil, fmt.Errorf("creating whisper output directory: %w", err)
	}
	defer os.RemoveAll(outputDir)

	runCtx := ctx
	cancel := func() {}
	if p.config.WhisperTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.config.WhisperTimeout)
	}
	defer cancel()

	done := metrics.ObserveTranscription()
	if err := p.runner(runCtx, p.config, audioPath, outputDir); err != nil {
		done("error")
		return nil, err
	}
	done("success")

	result, err := p.parseOutput(outputDir, audioPath)
	if err != nil {
		return nil, err
	}

	p.logger.WithFields(logrus.Fields{
		"audio":    filepath.Base(audioPath),
		"segments": len(result.Segments),
	}).Debug("Whisper transcription completed")
	return result, nil
}

func (p *WhisperProvider) parseOutput(outputDir, audioPath string) (*chunker.TranscriptionResult, error) {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	format := strings.ToLower(p.config.WhisperOutputFormat)
	if format == "" {
		format = "json"
	}

	target := filepath.Join(outputDir, fmt.Sprintf("%s.%s", base, format))
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("reading whisper output %s: %w", target, err)
	}

	switch format {
	case "json", "verbose_json":
		var payload struct {
			Text     string `json:"text"`
			Segments []struct {
				Start float64 `json:"start"`
				End   float64 `json:"end"`
				Text  string  `json:"text"`
			} `json:"segments"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parsing whisper JSON output: %w", err)
		}
		result := &chunker.TranscriptionResult{Text: strings.TrimSpace(payload.Text)}
		for _, s := range payload.Segments {
			start, end := s.Start, s.End
			result.Segments = append(result.Segments, chunker.TranscriptSegment{
				Start: &start,
				End:   &end,
				Text:  strings.TrimSpace(s.Text),
			})
		}
		return result, nil
	default:
		return &chunker.TranscriptionResult{Text: strings.TrimSpace(string(data))}, nil
	}
}

func defaultWhisperRunner(ctx context.Context, cfg *config.Configuration, audioPath, outputDir string) error {
	args := []string{
		audioPath,
		"--model", cfg.WhisperModel,
		"--output_dir", outputDir,
		"--output_format", cfg.WhisperOutputFormat,
	}
	if cfg.WhisperLanguage != "" {
		args = append(args, "--language", cfg.WhisperLanguage)
	}

	cmd := exec.CommandContext(ctx, cfg.WhisperBinary, args...)
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("whisper command failed: %w: %s", err, combined.String())
	}
	return nil
}
