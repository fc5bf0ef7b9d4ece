// Package stats provides the numeric building blocks used by the speed
// estimator: dispersion of distances and displacement angles, weighted
// means and percentile-based outlier trimming.
//
// All functions are pure. Empty inputs yield zero rather than NaN.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeanAndDeviation returns the arithmetic mean and the population standard
// deviation of values. A single value has zero deviation.
func MeanAndDeviation(values []float64) (mean, deviation float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

// ArithmeticMean returns the plain mean of values, or 0 when empty.
func ArithmeticMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// CircularMean returns the mean direction of angles (radians), computed
// from the summed unit vectors so that angles either side of ±π average
// to ±π rather than to 0.
func CircularMean(angles []float64) float64 {
	if len(angles) == 0 {
		return 0
	}
	return stat.CircularMean(angles, nil)
}

// CircularDeviation returns the angular dispersion of angles about their
// circular mean. See CircularDeviationAbout.
func CircularDeviation(angles []float64) float64 {
	return CircularDeviationAbout(angles, CircularMean(angles))
}

// CircularDeviationAbout returns sqrt(mean(sin²(a - ref))) over angles.
//
// Using the sine of each offset keeps the result in [0, 1] regardless of
// wrap-around: tightly clustered angles give ~0 and a uniform spread over
// the full circle gives √½.
func CircularDeviationAbout(angles []float64, ref float64) float64 {
	if len(angles) == 0 {
		return 0
	}
	var sum float64
	for _, a := range angles {
		s := math.Sin(a - ref)
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(angles)))
}

// WeightedMean returns Σ(v·w)/Σ(w). When the weights sum to zero it falls
// back to the unweighted mean. It panics if the slice lengths differ.
func WeightedMean(values, weights []float64) float64 {
	if len(values) != len(weights) {
		panic("stats: slice length mismatch")
	}
	if len(values) == 0 {
		return 0
	}
	total := floats.Sum(weights)
	if total == 0 {
		return stat.Mean(values, nil)
	}
	return floats.Dot(values, weights) / total
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between the closest ranks. values need not be sorted.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// PercentileTrim keeps the items whose value lies in the inclusive band
// [P(p), P(100-p)] of all item values. If no item survives, the original
// slice is returned unchanged so the result is never empty for a
// non-empty input. Item order is preserved.
func PercentileTrim[T any](items []T, p float64, value func(T) float64) []T {
	if len(items) == 0 {
		return items
	}
	vals := make([]float64, len(items))
	for i, it := range items {
		vals[i] = value(it)
	}
	sort.Float64s(vals)
	lower := percentileSorted(vals, p)
	upper := percentileSorted(vals, 100-p)

	kept := make([]T, 0, len(items))
	for _, it := range items {
		v := value(it)
		if v >= lower && v <= upper {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return items
	}
	return kept
}
