// Package scoring rates a set of verified correspondences on six
// independent measures and folds them into one composite score.
package scoring

import (
	"math"

	"github.com/high-horse/fingerprint-server/internal/features"
	"github.com/high-horse/fingerprint-server/internal/imaging"
	"github.com/high-horse/fingerprint-server/internal/matcher"
)

// Composite weights. They sum to 1.
const (
	WeightQuantity        = 0.20
	WeightQuality         = 0.20
	WeightDistribution    = 0.15
	WeightPattern         = 0.15
	WeightLocalSimilarity = 0.15
	WeightMinutiae        = 0.15
)

// MinCorrespondences is the count below which every sub-score is 0.
const MinCorrespondences = 4

// SubScores are percentages in [0,100].
type SubScores struct {
	Quantity        float64 `json:"quantity"`
	Quality         float64 `json:"quality"`
	Distribution    float64 `json:"distribution"`
	Pattern         float64 `json:"pattern"`
	LocalSimilarity float64 `json:"local_similarity"`
	Minutiae        float64 `json:"minutiae"`
}

// Composite is the weighted sum of s clamped to [0,100].
func Composite(s SubScores) float64 {
	return clamp(WeightQuantity*s.Quantity +
		WeightQuality*s.Quality +
		WeightDistribution*s.Distribution +
		WeightPattern*s.Pattern +
		WeightLocalSimilarity*s.LocalSimilarity +
		WeightMinutiae*s.Minutiae)
}

// Pair is everything the measures look at for one comparison. Images are
// the preprocessed rasters the keypoints were detected on.
type Pair struct {
	KeypointsA, KeypointsB []features.Keypoint
	Correspondences        []matcher.Correspondence
	ImageA, ImageB         imaging.Gray
}

// Aggregator computes SubScores. The zero value is ready to use.
type Aggregator struct{}

func NewAggregator() *Aggregator { return &Aggregator{} }

// Score rates p. Correspondences must index into both keypoint slices.
func (a *Aggregator) Score(p Pair) SubScores {
	if len(p.Correspondences) < MinCorrespondences {
		return SubScores{}
	}
	return SubScores{
		Quantity:        Quantity(p),
		Quality:         Quality(p.Correspondences),
		Distribution:    Distribution(p),
		Pattern:         Pattern(p),
		LocalSimilarity: LocalSimilarity(p),
		Minutiae:        Minutiae(p),
	}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
