package speed

import (
	"fmt"
	"math"

	"github.com/banshee-data/groundspeed/internal/config"
	"github.com/banshee-data/groundspeed/internal/stats"
)

// Config holds the estimator constants. Use DefaultConfig or
// ConfigFromTuning rather than a zero value.
type Config struct {
	// GroundSampleDistance is the physical distance covered by one pixel.
	GroundSampleDistance float64
	// Acceptance is the exponent applied to the combined dispersion.
	Acceptance float64
	// Rejection multiplies the combined dispersion.
	Rejection float64
	// DistanceDevScale and AngleDevScale bring the distance deviation
	// (physical units) and the angle deviation (radians) to a comparable
	// magnitude before they are combined.
	DistanceDevScale float64
	AngleDevScale    float64
	// DiscardPercentile is trimmed from each tail of the speed history.
	DiscardPercentile float64
	// AngleReference selects the mean the angle dispersion is measured about.
	AngleReference string
	// Aggregation selects the strategy that folds samples into the estimate.
	Aggregation string
}

// DefaultConfig returns the built-in constants.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning extracts the estimator constants from a tuning config.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		GroundSampleDistance: t.GetGroundSampleDistance(),
		Acceptance:           t.GetAcceptance(),
		Rejection:            t.GetRejection(),
		DistanceDevScale:     t.GetDistanceDevScale(),
		AngleDevScale:        t.GetAngleDevScale(),
		DiscardPercentile:    t.GetDiscardPercentile(),
		AngleReference:       t.GetAngleReference(),
		Aggregation:          t.GetAggregation(),
	}
}

// Validate reports constants that would break the score range.
func (c Config) Validate() error {
	if !(c.GroundSampleDistance > 0) {
		return fmt.Errorf("ground sample distance must be positive, got %v", c.GroundSampleDistance)
	}
	if !(c.Acceptance > 0) || !(c.Rejection > 0) {
		return fmt.Errorf("acceptance and rejection must be positive, got %v and %v", c.Acceptance, c.Rejection)
	}
	if c.DistanceDevScale < 0 || c.AngleDevScale < 0 {
		return fmt.Errorf("deviation scales must be non-negative, got %v and %v", c.DistanceDevScale, c.AngleDevScale)
	}
	if c.DiscardPercentile < 0 || c.DiscardPercentile >= 50 {
		return fmt.Errorf("discard percentile must be in [0, 50), got %v", c.DiscardPercentile)
	}
	switch c.AngleReference {
	case config.AngleReferenceCircular, config.AngleReferenceArithmetic:
	default:
		return fmt.Errorf("unknown angle reference %q", c.AngleReference)
	}
	switch c.Aggregation {
	case config.AggregationTrimmedWeightedMean, config.AggregationNormalizedScore:
	default:
		return fmt.Errorf("unknown aggregation %q", c.Aggregation)
	}
	return nil
}

// Score combines the scaled distance deviation d0 and angle deviation d1
// into a confidence in (0, 1]. It is 1 only when both are zero.
func Score(cfg Config, d0, d1 float64) float64 {
	m := math.Pow(cfg.Rejection, cfg.Acceptance)
	return 1 / (m*math.Pow(d0*d0+d1*d1, cfg.Acceptance) + 1)
}

// Compute derives the speed and confidence of a single frame pair. Pairs
// without correspondences or with a non-positive elapsed time come back as
// zero-weight degenerate samples rather than errors.
func Compute(cfg Config, pair MatchedFramePair) (Sample, error) {
	n := len(pair.Correspondences)
	if n == 0 {
		return Sample{Degenerate: DegenerateEmpty}, nil
	}

	distances := make([]float64, n)
	angles := make([]float64, n)
	for i, c := range pair.Correspondences {
		if !finite(c.First) || !finite(c.Second) {
			return Sample{}, fmt.Errorf("%w at correspondence %d", ErrNonFiniteCoordinate, i)
		}
		dx := c.Second.X - c.First.X
		dy := c.Second.Y - c.First.Y
		distances[i] = math.Hypot(dx, dy) * cfg.GroundSampleDistance
		angles[i] = math.Atan2(dy, dx)
		tracef("correspondence %d: distance=%.4f angle=%.4f", i, distances[i], angles[i])
	}

	if pair.Elapsed <= 0 {
		return Sample{Correspondences: n, Degenerate: DegenerateZeroElapsed}, nil
	}

	meanDistance, devDistance := stats.MeanAndDeviation(distances)
	var devAngle float64
	if cfg.AngleReference == config.AngleReferenceArithmetic {
		devAngle = stats.CircularDeviationAbout(angles, stats.ArithmeticMean(angles))
	} else {
		devAngle = stats.CircularDeviation(angles)
	}
	devDistance *= cfg.DistanceDevScale
	devAngle *= cfg.AngleDevScale

	return Sample{
		Speed:             meanDistance / pair.Elapsed.Seconds(),
		Score:             Score(cfg, devDistance, devAngle),
		MeanDistance:      meanDistance,
		DistanceDeviation: devDistance,
		AngleDeviation:    devAngle,
		Correspondences:   n,
	}, nil
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}
