package facial

// Emotion and engagement labels emitted by the classifier.
const (
	EmotionJoyful    = "Joyful"
	EmotionAttentive = "Attentive"
	EmotionTired     = "Tired"
	EmotionNeutral   = "Neutral"
	EmotionNoFace    = "No Face Detected"

	EngagementHigh   = "High"
	EngagementMedium = "Medium"
	EngagementLow    = "Low"
)

// Classification thresholds. Rules are evaluated top to bottom, first
// match wins, lower bounds inclusive.
const (
	engagementHighSmile   = 0.32
	engagementHighEye     = 0.22
	engagementMediumSmile = 0.24
	engagementMediumEye   = 0.18

	emotionJoyfulSmile    = 0.35
	emotionAttentiveSmile = 0.27
	emotionAttentiveEye   = 0.20
	emotionTiredEye       = 0.15
)

// ClassifyEngagement maps a frame's smile and eye-openness ratios to an
// engagement label.
func ClassifyEngagement(smile, eye float64) string {
	if smile >= engagementHighSmile && eye >= engagementHighEye {
		return EngagementHigh
	}
	if smile >= engagementMediumSmile && eye >= engagementMediumEye {
		return EngagementMedium
	}
	return EngagementLow
}

// ClassifyEmotion maps a frame's smile and eye-openness ratios to an
// emotion label.
func ClassifyEmotion(smile, eye float64) string {
	if smile >= emotionJoyfulSmile {
		return EmotionJoyful
	}
	if smile >= emotionAttentiveSmile && eye >= emotionAttentiveEye {
		return EmotionAttentive
	}
	if eye < emotionTiredEye {
		return EmotionTired
	}
	return EmotionNeutral
}

// FrameMetric is one timeline entry for one sampled frame.
type FrameMetric struct {
	Timestamp   float64 `json:"timestamp"`
	Emotion     string  `json:"emotion"`
	Engagement  string  `json:"engagement"`
	SmileScore  float64 `json:"smileScore"`
	EyeOpenness float64 `json:"eyeOpenness"`
	FaceCount   int     `json:"faceCount"`
}

// NewFrameMetric classifies measured ratios into a timeline entry.
func NewFrameMetric(timestamp, smile, eye float64, faceCount int) FrameMetric {
	return FrameMetric{
		Timestamp:   timestamp,
		Emotion:     ClassifyEmotion(smile, eye),
		Engagement:  ClassifyEngagement(smile, eye),
		SmileScore:  smile,
		EyeOpenness: eye,
		FaceCount:   faceCount,
	}
}

// NewSentinelFrame builds the fixed low-confidence entry for a frame in
// which no face was detected.
func NewSentinelFrame(timestamp float64) FrameMetric {
	return FrameMetric{
		Timestamp:  timestamp,
		Emotion:    EmotionNoFace,
		Engagement: EngagementLow,
	}
}
