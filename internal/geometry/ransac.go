package geometry

import (
	"math"
	"math/rand"
)

const (
	DefaultThreshold     = 5.0
	DefaultMaxIterations = 2000
	DefaultConfidence    = 0.995

	sampleSize = 4
)

type RANSACOptions struct {
	// Threshold is the maximum reprojection error, in pixels, of an inlier.
	Threshold     float64
	MaxIterations int
	// Confidence drives the adaptive iteration count; 0 disables it.
	Confidence float64
	Seed       int64
}

func DefaultRANSACOptions() RANSACOptions {
	return RANSACOptions{
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
		Confidence:    DefaultConfidence,
	}
}

// Fit is a homography together with the inlier mask it was accepted with,
// aligned with the input pairs.
type Fit struct {
	H       Homography
	Inliers []bool
}

func (f *Fit) InlierCount() int {
	if f == nil {
		return 0
	}
	n := 0
	for _, in := range f.Inliers {
		if in {
			n++
		}
	}
	return n
}

// FindHomography robustly fits a homography mapping src onto dst.
func FindHomography(src, dst []Point, opts RANSACOptions) (*Fit, error) {
	n := len(src)
	if n != len(dst) || n < sampleSize {
		return nil, ErrTooFewPoints
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var (
		best      Homography
		bestMask  []bool
		bestCount int
		bestErr   = math.Inf(1)
	)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	s := make([]Point, sampleSize)
	d := make([]Point, sampleSize)

	limit := opts.MaxIterations
	for iter := 0; iter < limit; iter++ {
		// Partial Fisher-Yates: the first four entries become the sample.
		for i := 0; i < sampleSize; i++ {
			j := i + rng.Intn(n-i)
			idx[i], idx[j] = idx[j], idx[i]
			s[i], d[i] = src[idx[i]], dst[idx[i]]
		}
		if collinear(s) || collinear(d) {
			continue
		}
		h, err := DLT(s, d)
		if err != nil {
			continue
		}
		mask, count, total := score(h, src, dst, opts.Threshold)
		if count > bestCount || (count == bestCount && count > 0 && total < bestErr) {
			best, bestMask, bestCount, bestErr = h, mask, count, total
			if opts.Confidence > 0 {
				if k := iterations(opts.Confidence, float64(count)/float64(n)); k < limit {
					limit = k
				}
			}
		}
	}
	if bestCount < sampleSize {
		return nil, ErrNoModel
	}

	// Refine on the consensus set; keep the refinement only if it does not
	// lose support.
	var is, id []Point
	for i, in := range bestMask {
		if in {
			is = append(is, src[i])
			id = append(id, dst[i])
		}
	}
	if h, err := DLT(is, id); err == nil {
		if mask, count, _ := score(h, src, dst, opts.Threshold); count >= bestCount {
			best, bestMask = h, mask
		}
	}
	return &Fit{H: best, Inliers: bestMask}, nil
}

func score(h Homography, src, dst []Point, threshold float64) ([]bool, int, float64) {
	mask := make([]bool, len(src))
	count := 0
	var total float64
	for i := range src {
		e := h.ReprojectionError(src[i], dst[i])
		if e <= threshold {
			mask[i] = true
			count++
			total += e
		}
	}
	return mask, count, total
}

// iterations is the number of draws needed to pick an all-inlier sample
// with the given confidence at inlier ratio w.
func iterations(confidence, w float64) int {
	if w >= 1 {
		return 1
	}
	p := math.Pow(w, sampleSize)
	if p <= 0 {
		return math.MaxInt32
	}
	num := math.Log(1 - confidence)
	den := math.Log(1 - p)
	if den >= 0 {
		return math.MaxInt32
	}
	k := math.Ceil(num / den)
	if k > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(k)
}

// collinear reports whether any three of the four sample points lie on
// one line.
func collinear(p []Point) bool {
	for i := 0; i < len(p); i++ {
		for j := i + 1; j < len(p); j++ {
			for k := j + 1; k < len(p); k++ {
				if math.Abs(cross(p[i], p[j], p[k])) < 1e-6 {
					return true
				}
			}
		}
	}
	return false
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
