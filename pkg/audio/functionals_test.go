package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVoiceMetricsPromotesDescriptors(t *testing.T) {
	raw := map[string]float64{
		"loudness_sma3_amean":               0.42,
		"F0semitoneFrom27.5Hz_sma3nz_amean": 27.3,
		"jitterLocal_sma3nz_amean":          0.011,
	}
	vm := NewVoiceMetrics(raw)

	assert.Equal(t, 0.42, vm.VoiceEnergy)
	assert.Equal(t, 27.3, vm.VoiceArousal)
	assert.Equal(t, 0.011, vm.Raw["jitterLocal_sma3nz_amean"])
}

func TestNewVoiceMetricsMissingDescriptorsDefaultZero(t *testing.T) {
	vm := NewVoiceMetrics(map[string]float64{"something_else": 1.0})
	assert.Zero(t, vm.VoiceEnergy)
	assert.Zero(t, vm.VoiceArousal)

	empty := NewVoiceMetrics(nil)
	assert.Zero(t, empty.VoiceEnergy)
	assert.NotNil(t, empty.Raw)
}

func TestParseFunctionalsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	content := "name;loudness_sma3_amean;F0semitoneFrom27.5Hz_sma3nz_amean\n" +
		"'clip.wav';0.5100;24.0000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	row, err := parseFunctionalsCSV(path)
	require.NoError(t, err)

	// The non-numeric name column is skipped, numeric columns kept.
	assert.NotContains(t, row, "name")
	assert.Equal(t, 0.51, row["loudness_sma3_amean"])
	assert.Equal(t, 24.0, row["F0semitoneFrom27.5Hz_sma3nz_amean"])
}

func TestParseFunctionalsCSVRejectsHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("a;b\n"), 0o644))

	_, err := parseFunctionalsCSV(path)
	assert.Error(t, err)
}
