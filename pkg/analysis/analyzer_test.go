package analysis

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-server/pkg/config"
	apperrors "engagement-server/pkg/errors"
	"engagement-server/pkg/facial"
	"engagement-server/pkg/media"
	"engagement-server/pkg/session"
)

// testFace builds a landmark set whose geometry, on a 100x100 frame,
// measures a 0.4 smile ratio and 0.25 eye openness.
func testFace() facial.Landmarks {
	lm := make(facial.Landmarks, 468)
	lm[facial.MouthCornerLeft] = facial.Point{X: 0.3, Y: 0.5}
	lm[facial.MouthCornerRight] = facial.Point{X: 0.7, Y: 0.5}
	lm[facial.UpperLip] = facial.Point{X: 0.5, Y: 0.48}
	lm[facial.LowerLip] = facial.Point{X: 0.5, Y: 0.64}
	lm[facial.LeftEyeOuter] = facial.Point{X: 0.35, Y: 0.35}
	lm[facial.RightEyeOuter] = facial.Point{X: 0.65, Y: 0.35}
	lm[facial.LeftEyeUpperLid] = facial.Point{X: 0.4, Y: 0.33}
	lm[facial.LeftEyeLowerLid] = facial.Point{X: 0.4, Y: 0.405}
	lm[facial.RightEyeUpperLid] = facial.Point{X: 0.6, Y: 0.33}
	lm[facial.RightEyeLowerLid] = facial.Point{X: 0.6, Y: 0.405}
	return lm
}

type fakeProcessor struct {
	t         *testing.T
	frames    int
	badFrames map[int]bool
	samples   []int16
	rate      int
}

func (p *fakeProcessor) ExtractFrames(_ context.Context, _ string, outDir string, _ int) ([]string, error) {
	paths := make([]string, 0, p.frames)
	for i := 0; i < p.frames; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("frame_%05d.png", i))
		if p.badFrames[i] {
			require.NoError(p.t, os.WriteFile(path, []byte("not a png"), 0o644))
		} else {
			writePNG(p.t, path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *fakeProcessor) ExtractAudio(_ context.Context, _ string, wavPath string) error {
	return media.WriteWAV(wavPath, p.samples, p.rate)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 100, 100))))
}

type fakeDetector struct {
	facesByFrame [][]facial.Landmarks
	call         int
	closed       bool
}

func (d *fakeDetector) DetectFaces(context.Context, string) ([]facial.Landmarks, error) {
	defer func() { d.call++ }()
	if d.call >= len(d.facesByFrame) {
		return nil, nil
	}
	return d.facesByFrame[d.call], nil
}

func (d *fakeDetector) Close() error {
	d.closed = true
	return nil
}

type fakeFunctionals struct {
	values map[string]float64
	err    error
}

func (f *fakeFunctionals) Functionals(context.Context, string) (map[string]float64, error) {
	return f.values, f.err
}

type fakePublisher struct {
	sessionID    string
	artifactPath string
	calls        int
}

func (p *fakePublisher) PublishAnalysisComplete(sessionID, artifactPath string) {
	p.calls++
	p.sessionID = sessionID
	p.artifactPath = artifactPath
}

func testConfig(fps int) *config.Configuration {
	return &config.Configuration{FrameRate: fps, AudioSampleRate: 16000}
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	store, err := session.NewStore(logger, t.TempDir())
	require.NoError(t, err)
	return store
}

func seedSession(t *testing.T, store *session.Store, withAudience bool) string {
	t.Helper()
	id := store.NewSessionID()
	require.NoError(t, store.EnsureSession(id))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(id), session.PresenterFile), []byte("video"), 0o644))
	if withAudience {
		require.NoError(t, os.WriteFile(filepath.Join(store.Dir(id), session.AudienceFile), []byte("video"), 0o644))
	}
	return id
}

// oneSecondTone is a constant full-window signal so the energy series has a
// single window whose normalized RMS is 1.0.
func oneSecondTone(rate int) []int16 {
	samples := make([]int16, rate)
	for i := range samples {
		samples[i] = 16384
	}
	return samples
}

func TestAnalyzerRunSuccess(t *testing.T) {
	store := newTestStore(t)
	id := seedSession(t, store, false)

	detector := &fakeDetector{facesByFrame: [][]facial.Landmarks{
		{testFace()},
		nil, // second frame has no face and gets the sentinel entry
	}}
	processor := &fakeProcessor{t: t, frames: 2, samples: oneSecondTone(16000), rate: 16000}
	functionals := &fakeFunctionals{values: map[string]float64{
		"loudness_sma3_amean":               0.42,
		"F0semitoneFrom27.5Hz_sma3nz_amean": 31.5,
	}}
	publisher := &fakePublisher{}

	az := NewAnalyzer(logrus.New(), testConfig(2), store, processor, func() (facial.Detector, error) {
		return detector, nil
	}, functionals, publisher)
	az.now = func() time.Time { return fixedTime }

	result, err := az.Run(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, result.PresenterTimeline, 2)
	first := result.PresenterTimeline[0]
	assert.Equal(t, 0.0, first.Timestamp)
	assert.Equal(t, facial.EmotionJoyful, first.Emotion)
	assert.Equal(t, facial.EngagementHigh, first.Engagement)
	assert.Equal(t, 0.4, first.SmileScore)
	assert.Equal(t, 0.25, first.EyeOpenness)
	assert.Equal(t, 1, first.FaceCount)

	second := result.PresenterTimeline[1]
	assert.Equal(t, 0.5, second.Timestamp)
	assert.Equal(t, facial.EmotionNoFace, second.Emotion)
	assert.Zero(t, second.FaceCount)

	assert.NotNil(t, result.AudienceTimeline)
	assert.Empty(t, result.AudienceTimeline)
	assert.Equal(t, []float64{1.0}, result.VoiceTimeline)
	assert.Equal(t, facial.EngagementHigh, result.Summary.VoiceEnergyLevel)
	assert.Equal(t, 0.42, result.Summary.VoiceMetrics.VoiceEnergy)
	assert.Equal(t, 31.5, result.Summary.VoiceMetrics.VoiceArousal)

	assert.True(t, detector.closed, "detector handle must be released")
	assert.Equal(t, 1, publisher.calls)
	assert.Equal(t, id, publisher.sessionID)
	assert.Equal(t, store.ArtifactPath(id), publisher.artifactPath)

	var persisted SessionAnalysis
	require.NoError(t, store.ReadAnalysis(id, &persisted))
	assert.Equal(t, result.SessionID, persisted.SessionID)
	assert.Equal(t, result.Summary.GeneratedAt, persisted.Summary.GeneratedAt)
	require.Len(t, persisted.PresenterTimeline, 2)
}

func TestAnalyzerRunWithAudience(t *testing.T) {
	store := newTestStore(t)
	id := seedSession(t, store, true)

	// One shared factory call per video task; each task gets a fresh handle.
	var handles []*fakeDetector
	factory := func() (facial.Detector, error) {
		d := &fakeDetector{facesByFrame: [][]facial.Landmarks{{testFace()}}}
		handles = append(handles, d)
		return d, nil
	}
	processor := &fakeProcessor{t: t, frames: 1, samples: oneSecondTone(16000), rate: 16000}

	az := NewAnalyzer(logrus.New(), testConfig(1), store, processor, factory, &fakeFunctionals{}, nil)

	result, err := az.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, result.PresenterTimeline, 1)
	assert.Len(t, result.AudienceTimeline, 1)
	require.Len(t, handles, 2)
	for _, h := range handles {
		assert.True(t, h.closed)
	}
}

func TestAnalyzerRunMissingPresenter(t *testing.T) {
	store := newTestStore(t)
	id := store.NewSessionID()
	require.NoError(t, store.EnsureSession(id))

	az := NewAnalyzer(logrus.New(), testConfig(1), store, &fakeProcessor{t: t}, nil, &fakeFunctionals{}, nil)

	_, err := az.Run(context.Background(), id)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrPresenterMissing))
}

func TestAnalyzerRunSkipsUndecodableFrame(t *testing.T) {
	store := newTestStore(t)
	id := seedSession(t, store, false)

	detector := &fakeDetector{facesByFrame: [][]facial.Landmarks{{testFace()}}}
	processor := &fakeProcessor{
		t:         t,
		frames:    2,
		badFrames: map[int]bool{0: true},
		samples:   oneSecondTone(16000),
		rate:      16000,
	}

	az := NewAnalyzer(logrus.New(), testConfig(2), store, processor, func() (facial.Detector, error) {
		return detector, nil
	}, &fakeFunctionals{}, nil)

	result, err := az.Run(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, result.PresenterTimeline, 1)
	// The surviving frame keeps its own sampling timestamp.
	assert.Equal(t, 0.5, result.PresenterTimeline[0].Timestamp)
}

func TestAnalyzerRunInvalidatesStaleArtifact(t *testing.T) {
	store := newTestStore(t)
	id := seedSession(t, store, false)
	_, err := store.WriteAnalysis(id, map[string]string{"stale": "artifact"})
	require.NoError(t, err)

	processor := &fakeProcessor{t: t, frames: 1, samples: oneSecondTone(16000), rate: 16000}
	factory := func() (facial.Detector, error) {
		return nil, stderrors.New("detector backend unavailable")
	}

	az := NewAnalyzer(logrus.New(), testConfig(1), store, processor, factory, &fakeFunctionals{}, nil)

	_, err = az.Run(context.Background(), id)
	require.Error(t, err)

	_, statErr := os.Stat(store.ArtifactPath(id))
	assert.True(t, os.IsNotExist(statErr), "stale artifact must be removed before processing")
}

func TestAnalyzerRejectsOversizedRecording(t *testing.T) {
	store := newTestStore(t)
	id := seedSession(t, store, false)

	cfg := testConfig(1)
	cfg.MaxUploadSize = 2 // presenter fixture is 5 bytes

	processor := &fakeProcessor{t: t, frames: 1, samples: oneSecondTone(16000), rate: 16000}
	az := NewAnalyzer(logrus.New(), cfg, store, processor, nil, &fakeFunctionals{}, nil)

	_, err := az.Run(context.Background(), id)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.ErrInvalidInput))
}

// borderlineFace measures a smile ratio just under the high-engagement
// threshold, close enough that rounding to four decimals crosses it.
func borderlineFace() facial.Landmarks {
	lm := testFace()
	lm[facial.LowerLip] = facial.Point{X: 0.5, Y: 0.627984} // smile 0.31996
	return lm
}

func TestAnalyzerClassifiesOnUnroundedScores(t *testing.T) {
	store := newTestStore(t)
	id := seedSession(t, store, false)

	detector := &fakeDetector{facesByFrame: [][]facial.Landmarks{{borderlineFace()}}}
	processor := &fakeProcessor{t: t, frames: 1, samples: oneSecondTone(16000), rate: 16000}

	az := NewAnalyzer(logrus.New(), testConfig(1), store, processor, func() (facial.Detector, error) {
		return detector, nil
	}, &fakeFunctionals{}, nil)

	result, err := az.Run(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, result.PresenterTimeline, 1)

	entry := result.PresenterTimeline[0]
	// The raw ratio 0.31996 misses the 0.32 high-engagement bound even
	// though the persisted score rounds up to it.
	assert.Equal(t, facial.EngagementMedium, entry.Engagement)
	assert.Equal(t, facial.EmotionAttentive, entry.Emotion)
	assert.Equal(t, 0.32, entry.SmileScore)
	assert.Equal(t, 0.25, entry.EyeOpenness)
}
