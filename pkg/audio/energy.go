package audio

import "math"

// EnergySeries computes one root-mean-square loudness value per second of
// audio. Samples are peak-normalized first so the series lands in [0, 1];
// a silent signal (peak 0) skips normalization instead of producing NaN.
// The final window may cover fewer than sampleRate samples.
func EnergySeries(samples []float64, sampleRate int) []float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil
	}

	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		peak = 1
	}

	energies := make([]float64, 0, len(samples)/sampleRate+1)
	for start := 0; start < len(samples); start += sampleRate {
		end := start + sampleRate
		if end > len(samples) {
			end = len(samples)
		}
		window := samples[start:end]
		if len(window) == 0 {
			continue
		}
		sum := 0.0
		for _, s := range window {
			norm := s / peak
			sum += norm * norm
		}
		energies = append(energies, math.Sqrt(sum/float64(len(window))))
	}
	return energies
}

// Round4 rounds a value to four decimal places, the precision used in the
// persisted artifact.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
