package main

import (
	"math/rand/v2"

	"github.com/banshee-data/groundspeed/internal/fsutil"
	"github.com/banshee-data/groundspeed/internal/speed"
)

// devGroundSpeed is the speed the synthetic frames simulate, in the ground
// sample distance unit per second.
const devGroundSpeed = 7.66

// syntheticCamera writes placeholder frames so the run exercises frame
// cleanup without a device.
type syntheticCamera struct {
	fs fsutil.FileSystem
}

func newSyntheticCamera(fsys fsutil.FileSystem) *syntheticCamera {
	return &syntheticCamera{fs: fsys}
}

func (c *syntheticCamera) Capture(path string) error {
	return c.fs.WriteFile(path, []byte("synthetic frame\n"), 0644)
}

func (c *syntheticCamera) Close() error { return nil }

// syntheticMatcher fabricates correspondences drifting along +x at
// devGroundSpeed, with pixel noise and a few gross mismatches.
type syntheticMatcher struct {
	pxPerSecond float64
	rng         *rand.Rand
}

func newSyntheticMatcher(gsd float64, seed int64) *syntheticMatcher {
	return &syntheticMatcher{
		pxPerSecond: devGroundSpeed / gsd,
		rng:         rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)),
	}
}

func (m *syntheticMatcher) Match(first, second speed.Frame) (speed.MatchedFramePair, error) {
	elapsed := second.CapturedAt.Sub(first.CapturedAt)
	shift := m.pxPerSecond * elapsed.Seconds()

	const n = 64
	a := make([]speed.Point, n)
	b := make([]speed.Point, n)
	for i := range a {
		a[i] = speed.Point{X: m.rng.Float64() * 4056, Y: m.rng.Float64() * 3040}
		b[i] = speed.Point{
			X: a[i].X + shift + m.rng.NormFloat64()*0.3,
			Y: a[i].Y + m.rng.NormFloat64()*0.3,
		}
		if m.rng.IntN(20) == 0 {
			b[i] = speed.Point{X: m.rng.Float64() * 4056, Y: m.rng.Float64() * 3040}
		}
	}
	corr, err := speed.NewCorrespondences(a, b)
	if err != nil {
		return speed.MatchedFramePair{}, err
	}
	return speed.MatchedFramePair{First: first, Second: second, Elapsed: elapsed, Correspondences: corr}, nil
}
