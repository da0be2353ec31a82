package scoring

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/high-horse/fingerprint-server/internal/imaging"
)

// correlator holds both images as matrices so patches are plain ROIs.
type correlator struct {
	a, b gocv.Mat
}

func newCorrelator(a, b imaging.Gray) (*correlator, error) {
	ma, err := imaging.GrayToMat(a)
	if err != nil {
		return nil, fmt.Errorf("image a: %w", err)
	}
	mb, err := imaging.GrayToMat(b)
	if err != nil {
		ma.Close()
		return nil, fmt.Errorf("image b: %w", err)
	}
	return &correlator{a: ma, b: mb}, nil
}

func (c *correlator) Close() {
	c.a.Close()
	c.b.Close()
}

// Correlate is the normalized cross-correlation, in [0,1], of the patches
// of side 2·PatchHalf centred on (ax, ay) in A and (bx, by) in B. Both
// patches must lie inside their image.
func (c *correlator) Correlate(ax, ay, bx, by int) float64 {
	pa := c.a.Region(patchRect(ax, ay))
	defer pa.Close()
	pb := c.b.Region(patchRect(bx, by))
	defer pb.Close()

	res := gocv.NewMat()
	defer res.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(pa, pb, &res, gocv.TmCcorrNormed, mask)
	if res.Empty() {
		return 0
	}
	v := float64(res.GetFloatAt(0, 0))
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func patchRect(x, y int) image.Rectangle {
	return image.Rect(x-PatchHalf, y-PatchHalf, x+PatchHalf, y+PatchHalf)
}
