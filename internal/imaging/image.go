// Package imaging holds the grayscale raster shared by every matching stage
// and the conversions between Go images, encoded payloads and gocv matrices.
package imaging

import (
	"image"
	"image/color"
	"image/draw"
)

// Gray is a row-major 8-bit single channel raster. Stages never mutate a
// Gray they receive; they return a new one.
type Gray struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewGray allocates a black w×h raster.
func NewGray(w, h int) Gray {
	if w < 0 || h < 0 {
		w, h = 0, 0
	}
	return Gray{Width: w, Height: h, Pix: make([]uint8, w*h)}
}

// Empty reports whether the raster has no pixels or an inconsistent buffer.
func (g Gray) Empty() bool {
	return g.Width <= 0 || g.Height <= 0 || len(g.Pix) != g.Width*g.Height
}

// At returns the pixel at (x, y). Out-of-range coordinates read as 0.
func (g Gray) At(x, y int) uint8 {
	if !g.In(x, y) {
		return 0
	}
	return g.Pix[y*g.Width+x]
}

// In reports whether (x, y) lies inside the raster.
func (g Gray) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Clone returns a deep copy.
func (g Gray) Clone() Gray {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return Gray{Width: g.Width, Height: g.Height, Pix: pix}
}

// Mean is the average intensity, 0 for an empty raster.
func (g Gray) Mean() float64 {
	if g.Empty() {
		return 0
	}
	var sum uint64
	for _, p := range g.Pix {
		sum += uint64(p)
	}
	return float64(sum) / float64(len(g.Pix))
}

// CountNonZero counts foreground pixels.
func (g Gray) CountNonZero() int {
	n := 0
	for _, p := range g.Pix {
		if p != 0 {
			n++
		}
	}
	return n
}

// Std returns the raster as an *image.Gray sharing no memory with g.
func (g Gray) Std() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	copy(img.Pix, g.Pix)
	return img
}

// FromImage converts any decoded image to a Gray using the standard
// luma conversion of image/color.
func FromImage(img image.Image) Gray {
	b := img.Bounds()
	out := NewGray(b.Dx(), b.Dy())
	if src, ok := img.(*image.Gray); ok {
		for y := 0; y < out.Height; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(out.Pix[y*out.Width:(y+1)*out.Width], src.Pix[off:off+out.Width])
		}
		return out
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			out.Pix[y*out.Width+x] = c.Y
		}
	}
	return out
}

// toRGBA normalizes an arbitrary image to a zero-origin *image.RGBA.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
