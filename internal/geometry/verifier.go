package geometry

import (
	"github.com/high-horse/fingerprint-server/internal/features"
	"github.com/high-horse/fingerprint-server/internal/matcher"
)

const (
	// MinFitPoints is the smallest correspondence count a homography is
	// fitted to. Below it the best FallbackLimit correspondences are kept.
	MinFitPoints  = 4
	FallbackLimit = 10
)

// Verifier drops correspondences that disagree with a single projective
// mapping of image A onto image B.
type Verifier struct {
	opts RANSACOptions
}

func NewVerifier(opts RANSACOptions) *Verifier {
	return &Verifier{opts: opts}
}

// Verify returns the inlier correspondences, in their incoming order, and
// the fit that selected them. When fewer than MinFitPoints correspondences
// are given no fit is attempted: the first FallbackLimit are returned with a
// nil Fit. A failed fit yields no correspondences and a nil Fit.
// Correspondences pointing outside kpA or kpB are ignored.
func (v *Verifier) Verify(corr []matcher.Correspondence, kpA, kpB []features.Keypoint) ([]matcher.Correspondence, *Fit) {
	valid := make([]matcher.Correspondence, 0, len(corr))
	for _, c := range corr {
		if c.QueryIdx >= 0 && c.QueryIdx < len(kpA) && c.TrainIdx >= 0 && c.TrainIdx < len(kpB) {
			valid = append(valid, c)
		}
	}

	if len(valid) < MinFitPoints {
		if len(valid) > FallbackLimit {
			valid = valid[:FallbackLimit]
		}
		return valid, nil
	}

	src := make([]Point, len(valid))
	dst := make([]Point, len(valid))
	for i, c := range valid {
		a, b := kpA[c.QueryIdx], kpB[c.TrainIdx]
		src[i] = Point{X: a.X, Y: a.Y}
		dst[i] = Point{X: b.X, Y: b.Y}
	}
	fit, err := FindHomography(src, dst, v.opts)
	if err != nil {
		return []matcher.Correspondence{}, nil
	}

	kept := make([]matcher.Correspondence, 0, fit.InlierCount())
	for i, in := range fit.Inliers {
		if in {
			kept = append(kept, valid[i])
		}
	}
	return kept, fit
}
