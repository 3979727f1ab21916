package facial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// CLIDetector runs an external face-mesh binary per frame. The binary takes
// an image path and prints one JSON landmark set per detected face.
type CLIDetector struct {
	logger     *logrus.Logger
	binaryPath string
	maxFaces   int
	timeout    time.Duration
	workDir    string
	closed     bool
}

// NewCLIDetector acquires a detector handle. The handle owns a private
// working directory released by Close; callers must not share it across
// concurrent analysis tasks.
func NewCLIDetector(logger *logrus.Logger, binaryPath string, maxFaces int) (*CLIDetector, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("face detector binary path is required")
	}
	if maxFaces <= 0 {
		maxFaces = 5
	}
	workDir, err := os.MkdirTemp("", "facemesh-*")
	if err != nil {
		return nil, fmt.Errorf("creating detector working directory: %w", err)
	}
	return &CLIDetector{
		logger:     logger,
		binaryPath: binaryPath,
		maxFaces:   maxFaces,
		timeout:    30 * time.Second,
		workDir:    workDir,
	}, nil
}

// DetectFaces runs the detector binary on one frame image and parses the
// landmark sets it reports.
func (d *CLIDetector) DetectFaces(ctx context.Context, imagePath string) ([]Landmarks, error) {
	if d.closed {
		return nil, fmt.Errorf("detector handle already closed")
	}

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.binaryPath,
		"--image", imagePath,
		"--max-faces", fmt.Sprintf("%d", d.maxFaces),
		"--workdir", d.workDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("face detector failed: %w: %s", err, stderr.String())
	}

	var payload struct {
		Faces [][]Point `json:"faces"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("parsing face detector output: %w", err)
	}

	faces := make([]Landmarks, 0, len(payload.Faces))
	for _, f := range payload.Faces {
		faces = append(faces, Landmarks(f))
	}
	return faces, nil
}

// Close releases the detector's working directory. Safe to call once per
// handle; the handle is unusable afterwards.
func (d *CLIDetector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if err := os.RemoveAll(d.workDir); err != nil {
		d.logger.WithError(err).Warn("Failed to remove detector working directory")
		return err
	}
	return nil
}
