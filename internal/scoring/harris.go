package scoring

import (
	"math"

	"github.com/high-horse/fingerprint-server/internal/imaging"
)

const (
	harrisK = 0.04
	// harrisBlock is the side of the window the gradient products are
	// summed over; the Sobel aperture is fixed at 3.
	harrisBlock = 2
)

// CornerResponse is a per-pixel Harris response map.
type CornerResponse struct {
	Width, Height int
	R             []float64
	max           float64
}

func (c CornerResponse) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < c.Width && y < c.Height
}

func (c CornerResponse) At(x, y int) float64 {
	return c.R[y*c.Width+x]
}

// Max is the strongest response, 0 for an empty map.
func (c CornerResponse) Max() float64 { return c.max }

// Harris computes det(M) - k·trace(M)² where M sums the products of 3×3
// Sobel gradients over a 2×2 window anchored at its bottom-right pixel.
// Borders reflect without repeating the edge pixel.
func Harris(g imaging.Gray) CornerResponse {
	if g.Empty() {
		return CornerResponse{}
	}
	w, h := g.Width, g.Height
	px := func(x, y int) float64 {
		return float64(g.Pix[reflect101(y, h)*w+reflect101(x, w)])
	}

	n := w * h
	xx := make([]float64, n)
	yy := make([]float64, n)
	xy := make([]float64, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)) -
				(px(x-1, y-1) + 2*px(x-1, y) + px(x-1, y+1))
			dy := (px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)) -
				(px(x-1, y-1) + 2*px(x, y-1) + px(x+1, y-1))
			i := y*w + x
			xx[i] = dx * dx
			yy[i] = dy * dy
			xy[i] = dx * dy
		}
	}

	out := CornerResponse{Width: w, Height: h, R: make([]float64, n), max: math.Inf(-1)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var a, b, c float64
			for dy := 1 - harrisBlock; dy <= 0; dy++ {
				for dx := 1 - harrisBlock; dx <= 0; dx++ {
					j := reflect101(y+dy, h)*w + reflect101(x+dx, w)
					a += xx[j]
					b += xy[j]
					c += yy[j]
				}
			}
			r := a*c - b*b - harrisK*(a+c)*(a+c)
			out.R[y*w+x] = r
			if r > out.max {
				out.max = r
			}
		}
	}
	return out
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		} else {
			i = 2*n - 2 - i
		}
	}
	return i
}
