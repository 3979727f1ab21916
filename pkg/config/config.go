package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Configuration holds all runtime settings for the analysis server.
type Configuration struct {
	// Session storage
	SessionRoot string

	// Media tooling
	FFmpegPath  string
	FFprobePath string

	// Video sampling
	FrameRate       int // frames sampled per second of video
	MaxFaces        int
	AudioSampleRate int

	// Facial landmark CLI
	DetectorBinary string

	// Input size limits. MaxUploadSize caps recording size ahead of
	// analysis, MaxAudioSize caps audio handed to transcription, and
	// CopyChunkSize bounds chunk copy buffers.
	MaxUploadSize int64
	MaxAudioSize  int64
	CopyChunkSize int

	// Transcription chunking
	ChunkByteCeiling       int64
	DefaultSegmentDuration float64
	MinSegmentDuration     float64
	MaxSegmentDuration     float64

	// Whisper transcription CLI
	WhisperBinary        string
	WhisperModel         string
	WhisperLanguage      string
	WhisperOutputFormat  string
	WhisperTimeout       time.Duration
	WhisperMaxConcurrent int

	// Acoustic functionals CLI (openSMILE-compatible)
	SmileBinary     string
	SmileConfigPath string

	// Messaging
	AMQPUrl      string
	AMQPExchange string

	// Metrics HTTP endpoint
	MetricsEnabled bool
	MetricsPort    int

	// Logging
	LogLevel  logrus.Level
	LogFormat string
}

// Load reads configuration from the environment, applying defaults and
// validating the result. A missing .env file is not an error.
func Load(logger *logrus.Logger) (*Configuration, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on process environment")
	}

	cfg := &Configuration{}

	cfg.SessionRoot = getEnv("SESSION_ROOT", "./sessions")
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnv("FFPROBE_PATH", "ffprobe")

	cfg.FrameRate = getEnvInt(logger, "ANALYSIS_FPS", 1)
	if cfg.FrameRate <= 0 {
		logger.Warn("Invalid ANALYSIS_FPS; defaulting to 1")
		cfg.FrameRate = 1
	}
	cfg.MaxFaces = getEnvInt(logger, "MAX_FACES", 5)
	cfg.AudioSampleRate = getEnvInt(logger, "AUDIO_SAMPLE_RATE", 16000)

	cfg.MaxUploadSize = getEnvInt64(logger, "MAX_UPLOAD_SIZE", 1024*1024*1024)
	cfg.MaxAudioSize = getEnvInt64(logger, "MAX_AUDIO_SIZE", 100*1024*1024)
	cfg.CopyChunkSize = getEnvInt(logger, "COPY_CHUNK_SIZE", 1024*1024)

	cfg.ChunkByteCeiling = getEnvInt64(logger, "CHUNK_BYTE_CEILING", 20*1024*1024)
	cfg.DefaultSegmentDuration = getEnvFloat(logger, "DEFAULT_SEGMENT_DURATION", 120)
	cfg.MinSegmentDuration = getEnvFloat(logger, "MIN_SEGMENT_DURATION", 45)
	cfg.MaxSegmentDuration = getEnvFloat(logger, "MAX_SEGMENT_DURATION", 600)

	cfg.WhisperBinary = getEnv("WHISPER_BINARY_PATH", "whisper")
	cfg.WhisperModel = getEnv("WHISPER_MODEL", "base")
	cfg.WhisperLanguage = os.Getenv("WHISPER_LANGUAGE")
	cfg.WhisperOutputFormat = getEnv("WHISPER_OUTPUT_FORMAT", "json")
	cfg.WhisperTimeout = time.Duration(getEnvInt(logger, "WHISPER_TIMEOUT_SECONDS", 600)) * time.Second
	cfg.WhisperMaxConcurrent = getEnvInt(logger, "WHISPER_MAX_CONCURRENT", 1)

	cfg.DetectorBinary = getEnv("LANDMARK_BINARY_PATH", "facemesh")

	cfg.SmileBinary = getEnv("SMILE_BINARY_PATH", "SMILExtract")
	cfg.SmileConfigPath = os.Getenv("SMILE_CONFIG_PATH")

	cfg.AMQPUrl = os.Getenv("AMQP_URL")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "engagement.analysis")

	cfg.MetricsEnabled = os.Getenv("METRICS_ENABLED") != "false"
	cfg.MetricsPort = getEnvInt(logger, "METRICS_PORT", 9090)

	levelStr := getEnv("LOG_LEVEL", "info")
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		logger.WithField("log_level", levelStr).Warn("Invalid LOG_LEVEL; defaulting to info")
		level = logrus.InfoLevel
	}
	cfg.LogLevel = level
	cfg.LogFormat = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency of the loaded configuration.
func (c *Configuration) Validate() error {
	if c.ChunkByteCeiling <= 0 {
		return fmt.Errorf("CHUNK_BYTE_CEILING must be positive, got %d", c.ChunkByteCeiling)
	}
	if c.MinSegmentDuration <= 0 {
		return fmt.Errorf("MIN_SEGMENT_DURATION must be positive, got %f", c.MinSegmentDuration)
	}
	if c.MinSegmentDuration > c.MaxSegmentDuration {
		return fmt.Errorf("MIN_SEGMENT_DURATION %.1f exceeds MAX_SEGMENT_DURATION %.1f",
			c.MinSegmentDuration, c.MaxSegmentDuration)
	}
	if c.DefaultSegmentDuration < c.MinSegmentDuration || c.DefaultSegmentDuration > c.MaxSegmentDuration {
		return fmt.Errorf("DEFAULT_SEGMENT_DURATION %.1f outside [%.1f, %.1f]",
			c.DefaultSegmentDuration, c.MinSegmentDuration, c.MaxSegmentDuration)
	}
	if c.AudioSampleRate <= 0 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be positive, got %d", c.AudioSampleRate)
	}
	if c.CopyChunkSize <= 0 {
		return fmt.Errorf("COPY_CHUNK_SIZE must be positive, got %d", c.CopyChunkSize)
	}
	return nil
}

// LogStartup logs the effective configuration at boot.
func (c *Configuration) LogStartup(logger *logrus.Logger) {
	logger.WithFields(logrus.Fields{
		"session_root":      c.SessionRoot,
		"analysis_fps":      c.FrameRate,
		"audio_sample_rate": c.AudioSampleRate,
		"chunk_ceiling":     c.ChunkByteCeiling,
		"segment_default":   c.DefaultSegmentDuration,
		"segment_min":       c.MinSegmentDuration,
		"segment_max":       c.MaxSegmentDuration,
		"whisper_binary":    c.WhisperBinary,
		"whisper_model":     c.WhisperModel,
		"amqp_enabled":      c.AMQPUrl != "",
		"metrics_enabled":   c.MetricsEnabled,
		"log_level":         c.LogLevel.String(),
	}).Info("Engagement analysis server configuration loaded")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(logger *logrus.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.WithField(key, v).Warnf("Invalid integer for %s; using default %d", key, fallback)
		return fallback
	}
	return n
}

func getEnvInt64(logger *logrus.Logger, key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.WithField(key, v).Warnf("Invalid integer for %s; using default %d", key, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(logger *logrus.Logger, key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.WithField(key, v).Warnf("Invalid number for %s; using default %.1f", key, fallback)
		return fallback
	}
	return f
}
