package vision

import (
	"fmt"
	"sort"

	"gocv.io/x/gocv"

	"github.com/banshee-data/groundspeed/internal/speed"
)

// DefaultRatio is the Lowe ratio a best match must beat its runner-up by.
const DefaultRatio = 0.75

// ORBMatcher pairs ORB keypoints between two frames with a brute-force
// Hamming matcher.
type ORBMatcher struct {
	// MaxMatches caps the correspondences kept per pair, best first.
	MaxMatches int
	// Ratio is the Lowe ratio test threshold; zero means DefaultRatio.
	Ratio float64
}

// Match loads both frames as grayscale and returns their correspondences.
// Elapsed time comes from the frames' capture timestamps.
func (m ORBMatcher) Match(first, second speed.Frame) (speed.MatchedFramePair, error) {
	img1 := gocv.IMRead(first.Path, gocv.IMReadGrayScale)
	defer img1.Close()
	if img1.Empty() {
		return speed.MatchedFramePair{}, fmt.Errorf("read frame %s", first.Path)
	}
	img2 := gocv.IMRead(second.Path, gocv.IMReadGrayScale)
	defer img2.Close()
	if img2.Empty() {
		return speed.MatchedFramePair{}, fmt.Errorf("read frame %s", second.Path)
	}

	orb := gocv.NewORB()
	defer orb.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	kp1, desc1 := orb.DetectAndCompute(img1, mask)
	defer desc1.Close()
	kp2, desc2 := orb.DetectAndCompute(img2, mask)
	defer desc2.Close()

	pair := speed.MatchedFramePair{
		First:   first,
		Second:  second,
		Elapsed: second.CapturedAt.Sub(first.CapturedAt),
	}
	if desc1.Empty() || desc2.Empty() {
		return pair, nil
	}

	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer bf.Close()
	matches := selectMatches(bf.KnnMatch(desc1, desc2, 2), m.ratio(), m.MaxMatches)

	corr := make([]speed.FeatureCorrespondence, 0, len(matches))
	for _, dm := range matches {
		if dm.QueryIdx >= len(kp1) || dm.TrainIdx >= len(kp2) {
			continue
		}
		a, b := kp1[dm.QueryIdx], kp2[dm.TrainIdx]
		corr = append(corr, speed.FeatureCorrespondence{
			First:  speed.Point{X: a.X, Y: a.Y},
			Second: speed.Point{X: b.X, Y: b.Y},
		})
	}
	pair.Correspondences = corr
	return pair, nil
}

func (m ORBMatcher) ratio() float64 {
	if m.Ratio <= 0 {
		return DefaultRatio
	}
	return m.Ratio
}

// selectMatches keeps the best candidate of each kNN group when it passes
// the ratio test, then returns up to limit of them ordered by distance.
// limit <= 0 keeps everything.
func selectMatches(knn [][]gocv.DMatch, ratio float64, limit int) []gocv.DMatch {
	out := make([]gocv.DMatch, 0, len(knn))
	for _, group := range knn {
		switch {
		case len(group) == 0:
			continue
		case len(group) == 1:
			out = append(out, group[0])
		case group[0].Distance < ratio*group[1].Distance:
			out = append(out, group[0])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
