package scoring

import (
	"math"

	"github.com/high-horse/fingerprint-server/internal/geometry"
	"github.com/high-horse/fingerprint-server/internal/matcher"
)

const (
	// MaxDescriptorDistance normalizes mean descriptor distance in Quality.
	MaxDescriptorDistance = 512.0
	// DistributionScale is the hull area, in px², worth one point.
	DistributionScale = 100.0
	// PatternScale is the mean positional drift, in px, that scores 0.
	PatternScale = 100.0
	// LocalPatches bounds the correspondences LocalSimilarity inspects.
	LocalPatches = 10
	// PatchHalf is half the side of the square patches correlated.
	PatchHalf = 16
	// MinutiaeFraction of an image's maximum corner response marks a
	// minutia candidate.
	MinutiaeFraction = 0.01
)

// Quantity is the share of the smaller keypoint set that found a
// correspondence.
func Quantity(p Pair) float64 {
	n := len(p.KeypointsA)
	if len(p.KeypointsB) < n {
		n = len(p.KeypointsB)
	}
	if n == 0 {
		return 0
	}
	return clamp(float64(len(p.Correspondences)) / float64(n) * 100)
}

// Quality rewards a low mean descriptor distance.
func Quality(c []matcher.Correspondence) float64 {
	if len(c) == 0 {
		return 0
	}
	var sum float64
	for _, x := range c {
		sum += x.Distance
	}
	return clamp(100 * (1 - sum/float64(len(c))/MaxDescriptorDistance))
}

// Distribution rewards correspondences spread over image A: the area of
// their convex hull.
func Distribution(p Pair) float64 {
	pts := make([]geometry.Point, len(p.Correspondences))
	for i, c := range p.Correspondences {
		kp := p.KeypointsA[c.QueryIdx]
		pts[i] = geometry.Point{X: kp.X, Y: kp.Y}
	}
	return clamp(geometry.HullArea(pts) / DistributionScale)
}

// Pattern penalizes the mean absolute coordinate drift between
// corresponding points.
func Pattern(p Pair) float64 {
	if len(p.Correspondences) == 0 {
		return 0
	}
	var sum float64
	for _, c := range p.Correspondences {
		a, b := p.KeypointsA[c.QueryIdx], p.KeypointsB[c.TrainIdx]
		sum += math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y)
	}
	drift := sum / float64(2*len(p.Correspondences))
	return clamp(100 * (1 - drift/PatternScale))
}

// LocalSimilarity averages the normalized cross-correlation of patches
// around the best correspondences. Patches that would leave either image
// are skipped.
func LocalSimilarity(p Pair) float64 {
	c := p.Correspondences
	if len(c) > LocalPatches {
		c = c[:LocalPatches]
	}
	ncc, err := newCorrelator(p.ImageA, p.ImageB)
	if err != nil {
		return 0
	}
	defer ncc.Close()

	var (
		sum float64
		n   int
	)
	for _, x := range c {
		a, b := p.KeypointsA[x.QueryIdx], p.KeypointsB[x.TrainIdx]
		ax, ay := int(a.X), int(a.Y)
		bx, by := int(b.X), int(b.Y)
		if !patchInside(p.ImageA.Width, p.ImageA.Height, ax, ay) ||
			!patchInside(p.ImageB.Width, p.ImageB.Height, bx, by) {
			continue
		}
		sum += ncc.Correlate(ax, ay, bx, by)
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp(sum / float64(n) * 100)
}

func patchInside(w, h, x, y int) bool {
	return x >= PatchHalf && x < w-PatchHalf && y >= PatchHalf && y < h-PatchHalf
}

// Minutiae is the share of correspondences whose points are strong corners
// in both images.
func Minutiae(p Pair) float64 {
	ra := Harris(p.ImageA)
	rb := Harris(p.ImageB)
	ta := MinutiaeFraction * ra.Max()
	tb := MinutiaeFraction * rb.Max()

	matched, total := 0, 0
	for _, c := range p.Correspondences {
		a, b := p.KeypointsA[c.QueryIdx], p.KeypointsB[c.TrainIdx]
		ax, ay := int(a.X), int(a.Y)
		bx, by := int(b.X), int(b.Y)
		if !ra.In(ax, ay) || !rb.In(bx, by) {
			continue
		}
		total++
		if ra.At(ax, ay) > ta && rb.At(bx, by) > tb {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(float64(matched) / float64(total) * 100)
}
