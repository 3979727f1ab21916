package stt

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/chunker"
	"engagement-server/pkg/config"
	"engagement-server/pkg/errors"
	"engagement-server/pkg/metrics"
)

// Splitter is the chunking dependency of the transcription service.
type Splitter interface {
	Split(ctx context.Context, audioPath string, requestedDuration float64) ([]chunker.Chunk, error)
}

// Service transcribes audio of any size by splitting it into bounded
// chunks, transcribing each independently and merging the results with
// absolute timestamps.
type Service struct {
	logger   *logrus.Logger
	splitter Splitter
	provider Provider

	maxAudioBytes int64
	copyChunkSize int
}

// NewService wires a chunker and a transcription provider together. cfg
// supplies the audio size ceiling and copy buffer bound; nil disables the
// size check and uses a 1 MiB buffer.
func NewService(logger *logrus.Logger, cfg *config.Configuration, splitter Splitter, provider Provider) *Service {
	s := &Service{
		logger:        logger,
		splitter:      splitter,
		provider:      provider,
		copyChunkSize: 1024 * 1024,
	}
	if cfg != nil {
		s.maxAudioBytes = cfg.MaxAudioSize
		if cfg.CopyChunkSize > 0 {
			s.copyChunkSize = cfg.CopyChunkSize
		}
	}
	metrics.Init(logger)
	return s
}

// Transcribe produces one timestamp-correct transcript for the whole
// recording at audioPath. Chunks are transcribed sequentially: each call
// drives a blocking external process, so parallelism here would only
// oversubscribe the host.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (*chunker.TranscriptionResult, error) {
	if s.maxAudioBytes > 0 {
		info, err := os.Stat(audioPath)
		if err != nil {
			return nil, errors.Wrap(err, "stat audio file")
		}
		if info.Size() > s.maxAudioBytes {
			return nil, errors.Wrap(errors.ErrInvalidInput, "audio exceeds maximum allowed size").
				WithFields(map[string]interface{}{
					"size":  info.Size(),
					"limit": s.maxAudioBytes,
				})
		}
	}

	chunks, err := s.splitter.Split(ctx, audioPath, 0)
	if err != nil {
		return nil, err
	}

	results := make([]chunker.TranscriptionResult, 0, len(chunks))
	for i, chunk := range chunks {
		result, err := s.transcribeChunk(ctx, chunk, i)
		if err != nil {
			return nil, errors.Wrap(errors.ErrTranscriptionFailed, err.Error()).
				WithFields(map[string]interface{}{
					"chunk":    i,
					"provider": s.provider.Name(),
				})
		}
		results = append(results, *result)
	}

	if len(results) == 1 {
		return &results[0], nil
	}

	merged := chunker.Merge(results, chunks)
	metrics.TranscriptionMerges.Inc()
	s.logger.WithFields(logrus.Fields{
		"chunks":   len(chunks),
		"segments": len(merged.Segments),
	}).Info("Merged chunked transcription")
	return &merged, nil
}

// transcribeChunk round-trips one chunk through a temp file for the
// provider and removes it before returning. Writes go through the
// configured copy buffer bound rather than in one piece.
func (s *Service) transcribeChunk(ctx context.Context, chunk chunker.Chunk, index int) (*chunker.TranscriptionResult, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("transcribe-chunk-%03d-*.wav", index))
	if err != nil {
		return nil, fmt.Errorf("creating chunk temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	for offset := 0; offset < len(chunk.Data); offset += s.copyChunkSize {
		end := offset + s.copyChunkSize
		if end > len(chunk.Data) {
			end = len(chunk.Data)
		}
		if _, err := f.Write(chunk.Data[offset:end]); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing chunk temp file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing chunk temp file: %w", err)
	}

	return s.provider.TranscribeFile(ctx, path)
}
