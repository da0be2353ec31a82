// Package matcher pairs descriptors of two images with an approximate 2-NN
// search and Lowe's ratio test.
package matcher

import (
	"math"
	"math/rand"

	"golang.org/x/exp/slices"

	"github.com/high-horse/fingerprint-server/internal/features"
)

const (
	DefaultTrees  = 5
	DefaultChecks = 100

	// The ratio test starts lenient and tightens in fixed steps until
	// MinMatches correspondences survive or the floor is reached.
	StartRatio = 0.80
	RatioStep  = 0.05
	FloorRatio = 0.65
	MinMatches = 8
)

// Correspondence pairs keypoint QueryIdx of image A with TrainIdx of image
// B. Distance is the Euclidean descriptor distance and is never recomputed
// once set.
type Correspondence struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

type Options struct {
	Trees  int
	Checks int
	Seed   int64
}

func DefaultOptions() Options {
	return Options{Trees: DefaultTrees, Checks: DefaultChecks}
}

type Matcher struct {
	opts Options
}

func New(opts Options) *Matcher {
	if opts.Trees <= 0 {
		opts.Trees = DefaultTrees
	}
	if opts.Checks <= 0 {
		opts.Checks = DefaultChecks
	}
	return &Matcher{opts: opts}
}

// KnnMatch returns, for every query descriptor, its two nearest train
// descriptors (fewer when train is that small), closest first.
func (m *Matcher) KnnMatch(query, train []features.Descriptor) [][]Correspondence {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(m.opts.Seed))
	f := newForest(train, m.opts.Trees, m.opts.Checks, rng)

	out := make([][]Correspondence, len(query))
	for qi, q := range query {
		nn := f.knn(q, 2)
		pair := make([]Correspondence, len(nn))
		for j, n := range nn {
			pair[j] = Correspondence{QueryIdx: qi, TrainIdx: n.index, Distance: math.Sqrt(n.dist)}
		}
		out[qi] = pair
	}
	return out
}

// RatioFilter keeps the best neighbour of every query whose distance is
// below ratio times the second best, sorted ascending by distance. Queries
// with fewer than two neighbours are skipped.
func RatioFilter(knn [][]Correspondence, ratio float64) []Correspondence {
	var kept []Correspondence
	for _, pair := range knn {
		if len(pair) < 2 {
			continue
		}
		if pair[0].Distance < ratio*pair[1].Distance {
			kept = append(kept, pair[0])
		}
	}
	SortByDistance(kept)
	return kept
}

// SortByDistance orders c ascending by distance, keeping query order among
// ties.
func SortByDistance(c []Correspondence) {
	slices.SortStableFunc(c, func(a, b Correspondence) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
}

// Ratios lists the ratio schedule from StartRatio down to FloorRatio.
func Ratios() []float64 {
	start := int(math.Round(StartRatio * 100))
	step := int(math.Round(RatioStep * 100))
	floor := int(math.Round(FloorRatio * 100))
	var out []float64
	for r := start; r >= floor; r -= step {
		out = append(out, float64(r)/100)
	}
	return out
}

// Adaptive applies filter at each ratio of the schedule and stops at the
// first one yielding at least MinMatches correspondences. When none does
// the floor ratio's result is returned.
func Adaptive(filter func(ratio float64) []Correspondence) ([]Correspondence, float64) {
	var (
		kept  []Correspondence
		ratio float64
	)
	for _, r := range Ratios() {
		kept, ratio = filter(r), r
		if len(kept) >= MinMatches {
			break
		}
	}
	return kept, ratio
}

// Match is MatchWithRatio without the ratio.
func (m *Matcher) Match(a, b []features.Descriptor) []Correspondence {
	c, _ := m.MatchWithRatio(a, b)
	return c
}

// MatchWithRatio matches a against b and also reports the ratio the
// adaptive test settled on.
func (m *Matcher) MatchWithRatio(a, b []features.Descriptor) ([]Correspondence, float64) {
	knn := m.KnnMatch(a, b)
	return Adaptive(func(ratio float64) []Correspondence {
		return RatioFilter(knn, ratio)
	})
}
