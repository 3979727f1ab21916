package audio

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"engagement-server/pkg/metrics"
)

// Descriptor names promoted to named VoiceMetrics fields. These follow the
// eGeMAPS functionals naming of the extraction toolchain.
const (
	energyDescriptor  = "loudness_sma3_amean"
	arousalDescriptor = "F0semitoneFrom27.5Hz_sma3nz_amean"
)

// VoiceMetrics holds whole-clip acoustic descriptors. VoiceEnergy and
// VoiceArousal are promoted from the raw mapping; every numeric descriptor
// is retained verbatim in Raw.
type VoiceMetrics struct {
	VoiceEnergy  float64            `json:"voiceEnergy"`
	VoiceArousal float64            `json:"voiceArousal"`
	Raw          map[string]float64 `json:"raw"`
}

// FunctionalsExtractor computes one row of named acoustic descriptors over
// a whole audio clip.
type FunctionalsExtractor interface {
	Functionals(ctx context.Context, wavPath string) (map[string]float64, error)
}

// NewVoiceMetrics promotes the named descriptors out of a raw functionals
// row. Missing descriptor names default to zero.
func NewVoiceMetrics(raw map[string]float64) VoiceMetrics {
	if raw == nil {
		raw = map[string]float64{}
	}
	return VoiceMetrics{
		VoiceEnergy:  raw[energyDescriptor],
		VoiceArousal: raw[arousalDescriptor],
		Raw:          raw,
	}
}

// SmileExtractor shells out to an openSMILE-compatible CLI that writes a
// single-row functionals CSV for the whole clip.
type SmileExtractor struct {
	logger     *logrus.Logger
	binaryPath string
	configPath string
	timeout    time.Duration
}

// NewSmileExtractor builds a CLI-backed functionals extractor.
func NewSmileExtractor(logger *logrus.Logger, binaryPath, configPath string) *SmileExtractor {
	if binaryPath == "" {
		binaryPath = "SMILExtract"
	}
	return &SmileExtractor{
		logger:     logger,
		binaryPath: binaryPath,
		configPath: configPath,
		timeout:    2 * time.Minute,
	}
}

// Functionals runs the extractor binary once over the clip and parses the
// descriptor row it produces.
func (s *SmileExtractor) Functionals(ctx context.Context, wavPath string) (map[string]float64, error) {
	outDir, err := os.MkdirTemp("", "functionals-*")
	if err != nil {
		return nil, fmt.Errorf("creating functionals output directory: %w", err)
	}
	defer os.RemoveAll(outDir)
	csvPath := filepath.Join(outDir, "functionals.csv")

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := observeFunctionals()
	args := []string{"-I", wavPath, "-csvoutput", csvPath}
	if s.configPath != "" {
		args = append([]string{"-C", s.configPath}, args...)
	}
	cmd := exec.CommandContext(runCtx, s.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		done()
		return nil, fmt.Errorf("functionals extraction failed: %w: %s", err, stderr.String())
	}
	done()

	row, err := parseFunctionalsCSV(csvPath)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"audio":       wavPath,
		"descriptors": len(row),
	}).Debug("Acoustic functionals extracted")
	return row, nil
}

// parseFunctionalsCSV reads a semicolon-separated header+row CSV into a
// descriptor map, skipping non-numeric columns such as the file name.
func parseFunctionalsCSV(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening functionals output: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing functionals CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("functionals CSV has no data row")
	}

	header, row := records[0], records[1]
	out := make(map[string]float64, len(header))
	for i, name := range header {
		if i >= len(row) {
			break
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}

func observeFunctionals() func() {
	start := time.Now()
	return func() {
		if metrics.FunctionalsDuration != nil {
			metrics.FunctionalsDuration.Observe(time.Since(start).Seconds())
		}
	}
}
