package facial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEngagement(t *testing.T) {
	cases := []struct {
		name       string
		smile, eye float64
		want       string
	}{
		{"high", 0.40, 0.25, EngagementHigh},
		{"high boundary inclusive", 0.32, 0.22, EngagementHigh},
		{"medium", 0.28, 0.19, EngagementMedium},
		{"medium boundary inclusive", 0.24, 0.18, EngagementMedium},
		{"smile alone not enough", 0.40, 0.10, EngagementLow},
		{"low", 0.10, 0.10, EngagementLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyEngagement(tc.smile, tc.eye))
		})
	}
}

func TestClassifyEmotion(t *testing.T) {
	cases := []struct {
		name       string
		smile, eye float64
		want       string
	}{
		{"joyful", 0.40, 0.25, EmotionJoyful},
		{"joyful ignores eyes", 0.35, 0.01, EmotionJoyful},
		{"attentive", 0.28, 0.21, EmotionAttentive},
		{"attentive boundary", 0.27, 0.20, EmotionAttentive},
		{"tired", 0.10, 0.10, EmotionTired},
		{"tired boundary excluded", 0.10, 0.15, EmotionNeutral},
		{"neutral", 0.20, 0.18, EmotionNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyEmotion(tc.smile, tc.eye))
		})
	}
}

func TestNewFrameMetric(t *testing.T) {
	m := NewFrameMetric(7.0, 0.40, 0.25, 2)
	assert.Equal(t, 7.0, m.Timestamp)
	assert.Equal(t, EmotionJoyful, m.Emotion)
	assert.Equal(t, EngagementHigh, m.Engagement)
	assert.Equal(t, 2, m.FaceCount)
}

func TestNewSentinelFrame(t *testing.T) {
	m := NewSentinelFrame(5.0)
	assert.Equal(t, 5.0, m.Timestamp)
	assert.Equal(t, EmotionNoFace, m.Emotion)
	assert.Equal(t, EngagementLow, m.Engagement)
	assert.Zero(t, m.SmileScore)
	assert.Zero(t, m.EyeOpenness)
	assert.Zero(t, m.FaceCount)
}
