package speed

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMismatchedCorrespondences is returned when the two coordinate lists
	// of a frame pair differ in length.
	ErrMismatchedCorrespondences = errors.New("speed: mismatched correspondence lists")

	// ErrNonFiniteCoordinate is returned when a correspondence carries a NaN
	// or infinite coordinate.
	ErrNonFiniteCoordinate = errors.New("speed: non-finite coordinate")
)

// Point is a pixel coordinate.
type Point struct {
	X, Y float64
}

// Frame is one captured image.
type Frame struct {
	Path       string
	CapturedAt time.Time
}

// FeatureCorrespondence pairs the pixel positions of the same physical
// point in two frames.
type FeatureCorrespondence struct {
	First, Second Point
}

// NewCorrespondences zips index-aligned coordinate lists from the first and
// second frame.
func NewCorrespondences(first, second []Point) ([]FeatureCorrespondence, error) {
	if len(first) != len(second) {
		return nil, fmt.Errorf("%w: %d vs %d points", ErrMismatchedCorrespondences, len(first), len(second))
	}
	out := make([]FeatureCorrespondence, len(first))
	for i := range first {
		out[i] = FeatureCorrespondence{First: first[i], Second: second[i]}
	}
	return out, nil
}

// MatchedFramePair is the unit of work consumed by the Estimator. It must
// not be modified after it has been submitted.
type MatchedFramePair struct {
	First, Second   Frame
	Elapsed         time.Duration
	Correspondences []FeatureCorrespondence
}

// DegenerateReason explains why a sample carries no weight.
type DegenerateReason int

const (
	NotDegenerate DegenerateReason = iota
	DegenerateEmpty
	DegenerateZeroElapsed
)

func (r DegenerateReason) String() string {
	switch r {
	case NotDegenerate:
		return "none"
	case DegenerateEmpty:
		return "no correspondences"
	case DegenerateZeroElapsed:
		return "non-positive elapsed time"
	default:
		return fmt.Sprintf("DegenerateReason(%d)", int(r))
	}
}

// Sample is the per-pair result. Score is in (0, 1] for informative
// samples and 0 for degenerate ones.
type Sample struct {
	Speed             float64
	Score             float64
	MeanDistance      float64
	DistanceDeviation float64
	AngleDeviation    float64
	Correspondences   int
	Degenerate        DegenerateReason
}

// Contributes reports whether the sample carries aggregation weight.
func (s Sample) Contributes() bool {
	return s.Degenerate == NotDegenerate && s.Score > 0
}
