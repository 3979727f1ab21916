package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-server/pkg/audio"
	"engagement-server/pkg/facial"
)

func frame(emotion, engagement string, smile float64) facial.FrameMetric {
	return facial.FrameMetric{Emotion: emotion, Engagement: engagement, SmileScore: smile, FaceCount: 1}
}

var fixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestBuildSummaryDominantEmotions(t *testing.T) {
	presenter := []facial.FrameMetric{
		frame(facial.EmotionJoyful, facial.EngagementHigh, 0.4),
		frame(facial.EmotionJoyful, facial.EngagementHigh, 0.4),
		frame(facial.EmotionNeutral, facial.EngagementLow, 0.1),
		facial.NewSentinelFrame(3),
	}
	audience := []facial.FrameMetric{
		frame(facial.EmotionTired, facial.EngagementLow, 0.05),
	}

	s := BuildSummary(presenter, audience, nil, audio.VoiceMetrics{}, fixedTime)

	assert.Equal(t, facial.EmotionJoyful, s.PresenterDominantEmotion)
	assert.Equal(t, facial.EmotionTired, s.AudienceDominantEmotion)
	assert.Equal(t, facial.EngagementHigh, s.EngagementOverall)
	assert.Equal(t, "2025-06-01T12:00:00Z", s.GeneratedAt)
}

func TestBuildSummaryTieBreakFirstSeen(t *testing.T) {
	presenter := []facial.FrameMetric{
		frame(facial.EmotionNeutral, facial.EngagementLow, 0.1),
		frame(facial.EmotionJoyful, facial.EngagementHigh, 0.4),
		frame(facial.EmotionJoyful, facial.EngagementMedium, 0.4),
		frame(facial.EmotionNeutral, facial.EngagementMedium, 0.1),
	}

	s := BuildSummary(presenter, nil, nil, audio.VoiceMetrics{}, fixedTime)

	// Neutral and Joyful both appear twice; Neutral was seen first.
	assert.Equal(t, facial.EmotionNeutral, s.PresenterDominantEmotion)
}

func TestBuildSummarySentinelOnlyTimelineIsUnknown(t *testing.T) {
	presenter := []facial.FrameMetric{
		facial.NewSentinelFrame(0),
		facial.NewSentinelFrame(1),
	}

	s := BuildSummary(presenter, nil, nil, audio.VoiceMetrics{}, fixedTime)

	assert.Equal(t, "Unknown", s.PresenterDominantEmotion)
	// Engagement counts sentinel entries (they carry Low).
	assert.Equal(t, facial.EngagementLow, s.EngagementOverall)
}

func TestBuildSummaryEmptyTimelines(t *testing.T) {
	s := BuildSummary(nil, nil, nil, audio.VoiceMetrics{}, fixedTime)

	assert.Equal(t, "Unknown", s.PresenterDominantEmotion)
	assert.Equal(t, "Unknown", s.AudienceDominantEmotion)
	assert.Equal(t, "Unknown", s.EngagementOverall)
	assert.Equal(t, facial.EngagementLow, s.VoiceEnergyLevel)
	assert.Zero(t, s.AveragePresenterSmile)
}

func TestBuildSummarySmileAverageIncludesSentinels(t *testing.T) {
	presenter := []facial.FrameMetric{
		frame(facial.EmotionJoyful, facial.EngagementHigh, 0.4),
		facial.NewSentinelFrame(1), // score 0 drags the mean down
	}

	s := BuildSummary(presenter, nil, nil, audio.VoiceMetrics{}, fixedTime)
	assert.Equal(t, 0.2, s.AveragePresenterSmile)
}

func TestBuildSummaryVoiceEnergyBuckets(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		want   string
	}{
		{"high", []float64{0.4, 0.4}, facial.EngagementHigh},
		{"high boundary", []float64{0.35}, facial.EngagementHigh},
		{"medium", []float64{0.25}, facial.EngagementMedium},
		{"medium boundary", []float64{0.20}, facial.EngagementMedium},
		{"low", []float64{0.1}, facial.EngagementLow},
		{"empty", nil, facial.EngagementLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := BuildSummary(nil, nil, tc.series, audio.VoiceMetrics{}, fixedTime)
			assert.Equal(t, tc.want, s.VoiceEnergyLevel)
		})
	}
}

func TestBuildSummaryObservationsInRuleOrder(t *testing.T) {
	presenter := []facial.FrameMetric{
		frame(facial.EmotionJoyful, facial.EngagementHigh, 0.5),
	}
	audience := []facial.FrameMetric{
		frame(facial.EmotionNeutral, facial.EngagementLow, 0.1),
	}
	series := []float64{0.5, 0.5}

	s := BuildSummary(presenter, audience, series, audio.VoiceMetrics{}, fixedTime)

	require.Len(t, s.KeyObservations, 3)
	assert.Equal(t, obsSmiling, s.KeyObservations[0])
	assert.Equal(t, obsVoice, s.KeyObservations[1])
	assert.Equal(t, obsAudience, s.KeyObservations[2])
}

func TestBuildSummaryFallbackObservation(t *testing.T) {
	s := BuildSummary(nil, nil, nil, audio.VoiceMetrics{}, fixedTime)
	require.Len(t, s.KeyObservations, 1)
	assert.Equal(t, obsFallback, s.KeyObservations[0])
}

func TestBuildSummaryIdempotent(t *testing.T) {
	presenter := []facial.FrameMetric{
		frame(facial.EmotionAttentive, facial.EngagementMedium, 0.28),
		facial.NewSentinelFrame(1),
	}
	series := []float64{0.21, 0.33}
	voice := audio.VoiceMetrics{VoiceEnergy: 0.5, Raw: map[string]float64{"x": 1}}

	a := BuildSummary(presenter, nil, series, voice, fixedTime)
	b := BuildSummary(presenter, nil, series, voice, fixedTime)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, ja, jb, "summary must be byte-identical across runs")
}
