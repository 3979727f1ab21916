package chunker

import (
	"context"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/errors"
	"engagement-server/pkg/metrics"
)

// Default split bounds. The byte ceiling stays under the transcription
// service's 25 MiB request limit with headroom.
const (
	DefaultMaxChunkBytes   = 20 * 1024 * 1024
	DefaultSegmentDuration = 120.0
	MinSegmentDuration     = 45.0
	MaxSegmentDuration     = 600.0

	// Each shrink retry reduces the attempted segment duration by 25%.
	shrinkFactor = 0.75
)

// Chunk is one bounded-size slice of the source audio with its absolute
// position in the recording. Chunks are transient: they are handed to the
// transcription service and never persisted.
type Chunk struct {
	Data  []byte
	Start float64
	End   float64
}

// Segmenter is the media collaborator the chunker drives: a duration probe
// and a fixed-duration segment cutter.
type Segmenter interface {
	ProbeDuration(ctx context.Context, mediaPath string) (float64, error)
	Segment(ctx context.Context, audioPath, outDir string, segmentSeconds float64) ([]string, error)
}

// Chunker splits arbitrarily large audio files into chunks under a hard
// byte ceiling using an adaptive shrink-retry loop.
type Chunker struct {
	logger    *logrus.Logger
	segmenter Segmenter

	maxChunkBytes   int64
	defaultDuration float64
	minDuration     float64
	maxDuration     float64
}

// New builds a chunker with the given bounds; zero values fall back to the
// package defaults.
func New(logger *logrus.Logger, segmenter Segmenter, maxChunkBytes int64, defaultDuration, minDuration, maxDuration float64) *Chunker {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxChunkBytes
	}
	if defaultDuration <= 0 {
		defaultDuration = DefaultSegmentDuration
	}
	if minDuration <= 0 {
		minDuration = MinSegmentDuration
	}
	if maxDuration <= 0 {
		maxDuration = MaxSegmentDuration
	}
	metrics.Init(logger)
	return &Chunker{
		logger:          logger,
		segmenter:       segmenter,
		maxChunkBytes:   maxChunkBytes,
		defaultDuration: defaultDuration,
		minDuration:     minDuration,
		maxDuration:     maxDuration,
	}
}

// EstimateChunkDuration computes the per-chunk duration needed to bring a
// file of the given size under the byte ceiling, capped at the maximum
// segment duration.
func (c *Chunker) EstimateChunkDuration(fileSize int64, totalDuration float64) float64 {
	if fileSize <= c.maxChunkBytes {
		return totalDuration
	}
	numChunks := fileSize/c.maxChunkBytes + 1
	estimate := totalDuration / float64(numChunks)
	return math.Min(estimate, c.maxDuration)
}

// duration probes the media duration, falling back to a size-based
// heuristic (1 MiB per minute of 16 kHz mono audio) when the probe fails.
// The boolean reports whether the probe succeeded.
func (c *Chunker) duration(ctx context.Context, audioPath string, fileSize int64) (float64, bool) {
	d, err := c.segmenter.ProbeDuration(ctx, audioPath)
	if err == nil && d > 0 {
		return d, true
	}
	sizeMB := float64(fileSize) / (1024 * 1024)
	fallback := sizeMB * 60
	c.logger.WithFields(logrus.Fields{
		"audio":    audioPath,
		"estimate": fallback,
	}).Warn("Duration probe failed; continuing with size-based estimate")
	return fallback, false
}

// Split cuts audioPath into contiguous chunks covering [0, totalDuration],
// each under the byte ceiling. requestedDuration tightens the initial
// segment length when positive. The attempted duration shrinks by 25% per
// oversized pass, floored at the minimum; a chunk still oversized at the
// floor is accepted with a warning rather than failing the run.
func (c *Chunker) Split(ctx context.Context, audioPath string, requestedDuration float64) ([]Chunk, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, errors.Wrap(err, "stat audio file")
	}
	fileSize := info.Size()

	totalDuration, probed := c.duration(ctx, audioPath, fileSize)

	if fileSize <= c.maxChunkBytes {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return nil, errors.Wrap(err, "reading audio file")
		}
		return []Chunk{{Data: data, Start: 0, End: totalDuration}}, nil
	}

	segmentDuration := c.EstimateChunkDuration(fileSize, totalDuration)
	if requestedDuration > 0 {
		segmentDuration = math.Min(segmentDuration, requestedDuration)
	}
	segmentDuration = math.Max(c.minDuration,
		math.Min(segmentDuration, math.Min(c.defaultDuration, c.maxDuration)))

	c.logger.WithFields(logrus.Fields{
		"audio":    audioPath,
		"size_mb":  float64(fileSize) / (1024 * 1024),
		"duration": totalDuration,
		"segment":  segmentDuration,
		"probe_ok": probed,
	}).Info("Preparing segmented audio extraction")

	attemptDuration := segmentDuration
	for {
		chunks, largest, err := c.segmentAttempt(ctx, audioPath, attemptDuration, totalDuration)
		if err != nil {
			return nil, err
		}

		if largest > c.maxChunkBytes && attemptDuration > c.minDuration {
			attemptDuration = math.Max(c.minDuration, attemptDuration*shrinkFactor)
			metrics.ChunkerRetries.Inc()
			c.logger.WithFields(logrus.Fields{
				"largest_mb":   float64(largest) / (1024 * 1024),
				"next_segment": attemptDuration,
			}).Warn("Chunk exceeded byte ceiling; retrying with shorter segments")
			continue
		}

		if largest > c.maxChunkBytes {
			// Minimum duration reached and still over the ceiling: accept
			// the result and flag it instead of failing the whole run.
			metrics.ChunkerOversizedFinal.Inc()
			c.logger.WithFields(logrus.Fields{
				"largest_mb": float64(largest) / (1024 * 1024),
				"segment":    attemptDuration,
			}).Warn("Chunk still over byte ceiling at minimum segment duration")
		}

		metrics.ChunksProduced.Observe(float64(len(chunks)))
		c.logger.WithFields(logrus.Fields{
			"chunks":     len(chunks),
			"segment":    attemptDuration,
			"largest_mb": float64(largest) / (1024 * 1024),
		}).Info("Audio chunking complete")
		return chunks, nil
	}
}

// segmentAttempt performs one segmentation pass, loading the produced
// segments and computing their absolute time spans.
func (c *Chunker) segmentAttempt(ctx context.Context, audioPath string, attemptDuration, totalDuration float64) ([]Chunk, int64, error) {
	tmpDir, err := os.MkdirTemp("", "audio-segments-*")
	if err != nil {
		return nil, 0, errors.Wrap(err, "creating segment directory")
	}
	defer os.RemoveAll(tmpDir)

	paths, err := c.segmenter.Segment(ctx, audioPath, tmpDir, attemptDuration)
	if err != nil {
		return nil, 0, errors.Wrap(errors.ErrSegmentationFailed, err.Error())
	}
	if len(paths) == 0 {
		return nil, 0, errors.Wrap(errors.ErrSegmentationFailed, "segmenter produced no output").
			WithField("audio", audioPath)
	}

	chunks := make([]Chunk, 0, len(paths))
	var largest int64
	for index, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, 0, errors.Wrap(err, "reading audio segment").
				WithField("segment", filepath.Base(p))
		}
		if int64(len(data)) > largest {
			largest = int64(len(data))
		}
		metrics.ChunkBytes.Observe(float64(len(data)))

		start := float64(index) * attemptDuration
		end := math.Min(start+attemptDuration, totalDuration)
		chunks = append(chunks, Chunk{Data: data, Start: start, End: end})
	}
	return chunks, largest, nil
}
