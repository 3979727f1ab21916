package analysis

import (
	"engagement-server/pkg/audio"
	"engagement-server/pkg/facial"
)

// SessionSummary is the derived session-level report. It is recomputed
// from scratch on every run.
type SessionSummary struct {
	GeneratedAt              string             `json:"generatedAt"`
	PresenterDominantEmotion string             `json:"presenterDominantEmotion"`
	AudienceDominantEmotion  string             `json:"audienceDominantEmotion"`
	AveragePresenterSmile    float64            `json:"averagePresenterSmile"`
	VoiceEnergyLevel         string             `json:"voiceEnergyLevel"`
	VoiceMetrics             audio.VoiceMetrics `json:"voiceMetrics"`
	KeyObservations          []string           `json:"keyObservations"`
	EngagementOverall        string             `json:"engagementOverall"`
}

// SessionAnalysis is the sole persisted artifact, fully regenerated each
// run and atomically replacing any prior version.
type SessionAnalysis struct {
	SessionID         string               `json:"sessionId"`
	Summary           SessionSummary       `json:"summary"`
	PresenterTimeline []facial.FrameMetric `json:"presenterTimeline"`
	AudienceTimeline  []facial.FrameMetric `json:"audienceTimeline"`
	VoiceTimeline     []float64            `json:"voiceTimeline"`
}
