// Package imagingtest generates synthetic fingerprint-like images for tests.
package imagingtest

import (
	"image"
	"image/color"
	"math"
	"math/rand"
)

// Ridges draws a w×h whorl of warped concentric ridges with a few ridge
// breaks, deterministic for a given seed.
func Ridges(w, h int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	cx := float64(w)/2 + (rng.Float64()-0.5)*float64(w)/6
	cy := float64(h)/2 + (rng.Float64()-0.5)*float64(h)/6
	period := 7 + rng.Float64()*2
	phase := rng.Float64() * 2 * math.Pi

	type blot struct{ x, y, r float64 }
	blots := make([]blot, 12)
	for i := range blots {
		blots[i] = blot{
			x: rng.Float64() * float64(w),
			y: rng.Float64() * float64(h),
			r: 2 + rng.Float64()*3,
		}
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			warp := 3*math.Sin(fx/17+phase) + 3*math.Cos(fy/23)
			r := math.Hypot(fx-cx, (fy-cy)*1.3)
			v := math.Sin(2*math.Pi*(r+warp)/period + phase)
			for _, b := range blots {
				if math.Hypot(fx-b.x, fy-b.y) < b.r {
					v = -v
				}
			}
			v += (rng.Float64() - 0.5) * 0.2
			img.SetGray(x, y, color.Gray{Y: clamp(128 + 110*v)})
		}
	}
	return img
}

// Uniform returns a featureless w×h image of intensity v.
func Uniform(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// Colorize copies a gray image into an RGBA with a faint tint so colour
// conversion paths are exercised.
func Colorize(g *image.Gray) *image.RGBA {
	b := g.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := g.GrayAt(x, y).Y
			out.Set(x, y, color.RGBA{R: v, G: v, B: clamp(float64(v) * 0.9), A: 255})
		}
	}
	return out
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
