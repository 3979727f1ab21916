package facial

import (
	"context"
	"math"
)

// Face-mesh landmark indices for the anatomical points the metrics use.
// These follow the 468-point face mesh numbering.
const (
	MouthCornerLeft  = 61
	MouthCornerRight = 291
	UpperLip         = 13
	LowerLip         = 14
	LeftEyeUpperLid  = 159
	LeftEyeLowerLid  = 145
	RightEyeUpperLid = 386
	RightEyeLowerLid = 374
	LeftEyeOuter     = 33
	RightEyeOuter    = 263
)

// Point is a single landmark in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks is one detected face's landmark set, indexable by the
// anatomical constants above.
type Landmarks []Point

// Detector finds face landmark sets in a still image. A detector handle is
// an expensive stateful resource: it is acquired once per analysis task,
// must not be shared across concurrent tasks, and must be released with
// Close when the task completes.
type Detector interface {
	DetectFaces(ctx context.Context, imagePath string) ([]Landmarks, error)
	Close() error
}

// geometryEpsilon floors divisors so degenerate landmark geometry can
// never produce an infinite ratio.
const geometryEpsilon = 1e-5

func distance(a, b Point, width, height int) float64 {
	ax, ay := a.X*float64(width), a.Y*float64(height)
	bx, by := b.X*float64(width), b.Y*float64(height)
	return math.Hypot(ax-bx, ay-by)
}

// Measure computes the mean smile ratio and eye-openness ratio across all
// detected faces in a frame of the given pixel dimensions. The frame-level
// score is the arithmetic mean over faces, not the single best face.
func Measure(faces []Landmarks, width, height int) (smile, eye float64) {
	if len(faces) == 0 {
		return 0, 0
	}
	var smileSum, eyeSum float64
	for _, lm := range faces {
		mouthWidth := distance(lm[MouthCornerLeft], lm[MouthCornerRight], width, height)
		mouthHeight := distance(lm[UpperLip], lm[LowerLip], width, height)
		leftEyeGap := distance(lm[LeftEyeUpperLid], lm[LeftEyeLowerLid], width, height)
		rightEyeGap := distance(lm[RightEyeUpperLid], lm[RightEyeLowerLid], width, height)
		eyeWidth := distance(lm[LeftEyeOuter], lm[RightEyeOuter], width, height)

		mouthWidth = math.Max(mouthWidth, geometryEpsilon)
		eyeWidth = math.Max(eyeWidth, geometryEpsilon)

		smileSum += mouthHeight / mouthWidth
		eyeSum += ((leftEyeGap + rightEyeGap) / 2.0) / eyeWidth
	}
	n := float64(len(faces))
	return smileSum / n, eyeSum / n
}
