package speed

import (
	"fmt"
	"math"

	"github.com/banshee-data/groundspeed/internal/config"
	"github.com/banshee-data/groundspeed/internal/stats"
)

// Aggregator folds the sample history into a single estimate. It returns
// false when no sample in history carries weight.
type Aggregator interface {
	Aggregate(history []Sample) (float64, bool)
}

// TrimmedWeightedMean discards Percentile from both tails of the speed
// distribution and returns the score-weighted mean of what remains.
type TrimmedWeightedMean struct {
	Percentile float64
}

func (a TrimmedWeightedMean) Aggregate(history []Sample) (float64, bool) {
	samples := contributing(history)
	if len(samples) == 0 {
		return 0, false
	}
	kept := stats.PercentileTrim(samples, a.Percentile, func(s Sample) float64 { return s.Speed })
	speeds := make([]float64, len(kept))
	weights := make([]float64, len(kept))
	for i, s := range kept {
		speeds[i] = s.Speed
		weights[i] = s.Score
	}
	return stats.WeightedMean(speeds, weights), true
}

// NormalizedScore damps samples whose score strays from the running mean
// score: each speed is scaled by ā/(ā+|s−ā|), where ā is the mean score
// up to and including that sample, and the scaled speeds are averaged.
type NormalizedScore struct{}

func (NormalizedScore) Aggregate(history []Sample) (float64, bool) {
	samples := contributing(history)
	if len(samples) == 0 {
		return 0, false
	}
	var aveScore, total float64
	for i, s := range samples {
		aveScore += (s.Score - aveScore) / float64(i+1)
		norm := aveScore + math.Abs(s.Score-aveScore)
		total += aveScore / norm * s.Speed
	}
	return total / float64(len(samples)), true
}

// NewAggregator returns the strategy named by cfg.Aggregation.
func NewAggregator(cfg Config) (Aggregator, error) {
	switch cfg.Aggregation {
	case config.AggregationTrimmedWeightedMean, "":
		return TrimmedWeightedMean{Percentile: cfg.DiscardPercentile}, nil
	case config.AggregationNormalizedScore:
		return NormalizedScore{}, nil
	default:
		return nil, fmt.Errorf("unknown aggregation %q", cfg.Aggregation)
	}
}

func contributing(history []Sample) []Sample {
	out := make([]Sample, 0, len(history))
	for _, s := range history {
		if s.Contributes() {
			out = append(out, s)
		}
	}
	return out
}

