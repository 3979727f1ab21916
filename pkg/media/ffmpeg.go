package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/errors"
)

// FFmpeg shells out to ffmpeg/ffprobe for decode, transcode, probe and
// segmentation. Every call is bounded by the caller's context.
type FFmpeg struct {
	logger      *logrus.Logger
	ffmpegPath  string
	ffprobePath string
	sampleRate  int
}

// NewFFmpeg builds a media collaborator around the given binaries.
func NewFFmpeg(logger *logrus.Logger, ffmpegPath, ffprobePath string, sampleRate int) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &FFmpeg{
		logger:      logger,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		sampleRate:  sampleRate,
	}
}

// ExtractFrames decodes videoPath into PNG stills at the given sampling rate
// and returns the sorted frame paths.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, outDir string, fps int) ([]string, error) {
	if fps <= 0 {
		fps = 1
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating frame directory")
	}

	pattern := filepath.Join(outDir, "frame_%05d.png")
	args := []string{
		"-y", "-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d", fps),
		"-f", "image2",
		"-vcodec", "png",
		pattern,
	}
	if err := f.run(ctx, args); err != nil {
		return nil, errors.Wrap(errors.ErrMediaFailure, err.Error()).
			WithField("video", videoPath)
	}

	frames, err := filepath.Glob(filepath.Join(outDir, "frame_*.png"))
	if err != nil {
		return nil, errors.Wrap(err, "listing extracted frames")
	}
	sort.Strings(frames)

	f.logger.WithFields(logrus.Fields{
		"video":  videoPath,
		"frames": len(frames),
		"fps":    fps,
	}).Debug("Extracted video frames")
	return frames, nil
}

// ExtractAudio transcodes videoPath into a mono 16-bit PCM WAV file.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, wavPath string) error {
	args := []string{
		"-y", "-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(f.sampleRate),
		wavPath,
	}
	if err := f.run(ctx, args); err != nil {
		return errors.Wrap(errors.ErrMediaFailure, err.Error()).
			WithField("video", videoPath)
	}
	return nil
}

// ProbeDuration returns the duration of the first stream in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, mediaPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "stream=duration",
		"-of", "json",
		mediaPath,
	}
	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String())
	}

	var payload struct {
		Streams []struct {
			Duration string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return 0, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	if len(payload.Streams) == 0 || payload.Streams[0].Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no stream duration for %s", mediaPath)
	}
	duration, err := strconv.ParseFloat(payload.Streams[0].Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing stream duration %q: %w", payload.Streams[0].Duration, err)
	}
	return duration, nil
}

// Segment cuts audioPath into consecutive fixed-duration WAV segments using
// the ffmpeg segment muxer. Timestamps inside each segment are reset to zero.
// Returns the sorted segment paths.
func (f *FFmpeg) Segment(ctx context.Context, audioPath, outDir string, segmentSeconds float64) ([]string, error) {
	pattern := filepath.Join(outDir, "chunk_%03d.wav")
	args := []string{
		"-y", "-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(segmentSeconds, 'f', -1, 64),
		"-ac", "1",
		"-ar", strconv.Itoa(f.sampleRate),
		"-acodec", "pcm_s16le",
		"-reset_timestamps", "1",
		"-loglevel", "error",
		pattern,
	}
	if err := f.run(ctx, args); err != nil {
		return nil, errors.Wrap(errors.ErrMediaFailure, err.Error()).
			WithField("audio", audioPath)
	}

	segments, err := filepath.Glob(filepath.Join(outDir, "chunk_*.wav"))
	if err != nil {
		return nil, errors.Wrap(err, "listing audio segments")
	}
	sort.Strings(segments)
	return segments, nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, stderr.String())
	}
	return nil
}
