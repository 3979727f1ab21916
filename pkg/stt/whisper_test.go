package stt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-server/pkg/config"
)

func whisperTestConfig() *config.Configuration {
	return &config.Configuration{
		WhisperBinary:       "whisper",
		WhisperModel:        "base",
		WhisperOutputFormat: "json",
	}
}

func TestWhisperParsesJSONOutput(t *testing.T) {
	provider := NewWhisperProvider(testLogger(), whisperTestConfig())
	provider.runner = func(ctx context.Context, cfg *config.Configuration, audioPath, outputDir string) error {
		out := filepath.Join(outputDir, "clip.json")
		payload := `{"text":" hello world ","segments":[{"start":0.5,"end":2.0,"text":" hello "},{"start":2.0,"end":3.5,"text":" world "}]}`
		return os.WriteFile(out, []byte(payload), 0o644)
	}

	result, err := provider.TranscribeFile(context.Background(), "/tmp/clip.wav")
	require.NoError(t, err)

	assert.Equal(t, "hello world", result.Text)
	require.Len(t, result.Segments, 2)
	assert.Equal(t, 0.5, *result.Segments[0].Start)
	assert.Equal(t, 3.5, *result.Segments[1].End)
	assert.Equal(t, "world", result.Segments[1].Text)
}

func TestWhisperPlainTextOutput(t *testing.T) {
	cfg := whisperTestConfig()
	cfg.WhisperOutputFormat = "txt"
	provider := NewWhisperProvider(testLogger(), cfg)
	provider.runner = func(ctx context.Context, c *config.Configuration, audioPath, outputDir string) error {
		return os.WriteFile(filepath.Join(outputDir, "clip.txt"), []byte("just text\n"), 0o644)
	}

	result, err := provider.TranscribeFile(context.Background(), "/tmp/clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "just text", result.Text)
	assert.Empty(t, result.Segments)
}

func TestWhisperMissingOutputFails(t *testing.T) {
	provider := NewWhisperProvider(testLogger(), whisperTestConfig())
	provider.runner = func(ctx context.Context, cfg *config.Configuration, audioPath, outputDir string) error {
		return nil // runner "succeeds" without producing output
	}

	_, err := provider.TranscribeFile(context.Background(), "/tmp/clip.wav")
	assert.Error(t, err)
}

func TestWhisperInitializeRequiresBinary(t *testing.T) {
	cfg := whisperTestConfig()
	cfg.WhisperBinary = ""
	provider := NewWhisperProvider(testLogger(), cfg)
	assert.Error(t, provider.Initialize())
}
