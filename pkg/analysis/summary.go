package analysis

import (
	"time"

	"engagement-server/pkg/audio"
	"engagement-server/pkg/facial"
)

// Voice energy level buckets over the mean of the per-second series.
const (
	voiceHighThreshold   = 0.35
	voiceMediumThreshold = 0.20
)

// Observation sentences, appended in fixed rule order.
const (
	obsSmiling  = "Presenter frequently smiling, suggesting positive affect."
	obsVoice    = "Voice energy sustained at a high level across the session."
	obsAudience = "Audience shows limited expressive response; consider adding variety to maintain interest."
	obsFallback = "Limited expressive cues detected; review raw footage for finer insights."
)

const labelUnknown = "Unknown"

// BuildSummary aggregates the per-role timelines and audio outputs into
// the session-level report. The generation time is passed in so repeated
// runs over the same inputs differ only in that explicit field.
func BuildSummary(presenter, audience []facial.FrameMetric, energySeries []float64, voice audio.VoiceMetrics, now time.Time) SessionSummary {
	presenterEmotions := emotionLabels(presenter)
	audienceEmotions := emotionLabels(audience)

	smileAvg := 0.0
	if len(presenter) > 0 {
		sum := 0.0
		// Sentinel frames count with score zero, pulling the average down.
		for _, m := range presenter {
			sum += m.SmileScore
		}
		smileAvg = sum / float64(len(presenter))
	}

	energyMean := 0.0
	if len(energySeries) > 0 {
		sum := 0.0
		for _, e := range energySeries {
			sum += e
		}
		energyMean = sum / float64(len(energySeries))
	}
	voiceLevel := facial.EngagementLow
	switch {
	case energyMean >= voiceHighThreshold:
		voiceLevel = facial.EngagementHigh
	case energyMean >= voiceMediumThreshold:
		voiceLevel = facial.EngagementMedium
	}

	engagements := make([]string, 0, len(presenter))
	for _, m := range presenter {
		engagements = append(engagements, m.Engagement)
	}

	audienceDominant := dominantLabel(audienceEmotions)

	var observations []string
	if smileAvg > 0.3 {
		observations = append(observations, obsSmiling)
	}
	if voiceLevel == facial.EngagementHigh {
		observations = append(observations, obsVoice)
	}
	if audienceDominant == facial.EmotionNeutral || audienceDominant == facial.EmotionTired {
		observations = append(observations, obsAudience)
	}
	if len(observations) == 0 {
		observations = append(observations, obsFallback)
	}

	return SessionSummary{
		GeneratedAt:              now.UTC().Format(time.RFC3339),
		PresenterDominantEmotion: dominantLabel(presenterEmotions),
		AudienceDominantEmotion:  audienceDominant,
		AveragePresenterSmile:    audio.Round4(smileAvg),
		VoiceEnergyLevel:         voiceLevel,
		VoiceMetrics:             voice,
		KeyObservations:          observations,
		EngagementOverall:        dominantLabel(engagements),
	}
}

// emotionLabels collects the non-sentinel emotion labels of a timeline.
func emotionLabels(timeline []facial.FrameMetric) []string {
	labels := make([]string, 0, len(timeline))
	for _, m := range timeline {
		if m.Emotion == facial.EmotionNoFace {
			continue
		}
		labels = append(labels, m.Emotion)
	}
	return labels
}

// dominantLabel returns the most frequent label, breaking ties by first
// appearance so the result is deterministic. Returns "Unknown" for an
// empty list.
func dominantLabel(labels []string) string {
	if len(labels) == 0 {
		return labelUnknown
	}
	counts := make(map[string]int, len(labels))
	var order []string
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}
	best := order[0]
	for _, l := range order[1:] {
		if counts[l] > counts[best] {
			best = l
		}
	}
	return best
}
