package imaging

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

var ErrNotGray = errors.New("imaging: matrix is not single-channel 8-bit")

// ToMat converts a decoded image to a gocv matrix: CV8UC1 for gray sources,
// CV8UC3 in BGR channel order for everything else. The caller owns the
// returned Mat.
func ToMat(img image.Image) (gocv.Mat, error) {
	if img == nil {
		return gocv.NewMat(), ErrEmptyPayload
	}
	if g, ok := img.(*image.Gray); ok {
		return GrayToMat(FromImage(g))
	}

	rgba := toRGBA(img)
	b := rgba.Bounds()
	if b.Empty() {
		return gocv.NewMat(), ErrEmptyPayload
	}
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("rgba to mat: %w", err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

// GrayToMat copies g into a new CV8UC1 matrix.
func GrayToMat(g Gray) (gocv.Mat, error) {
	if g.Empty() {
		return gocv.NewMat(), ErrEmptyPayload
	}
	pix := make([]byte, len(g.Pix))
	copy(pix, g.Pix)
	m, err := gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("gray to mat: %w", err)
	}
	defer m.Close()
	return m.Clone(), nil
}

// GrayFromMat copies a single-channel 8-bit matrix into a Gray.
func GrayFromMat(m gocv.Mat) (Gray, error) {
	if m.Empty() {
		return Gray{}, ErrEmptyPayload
	}
	if m.Type() != gocv.MatTypeCV8UC1 {
		return Gray{}, fmt.Errorf("%w: type %v", ErrNotGray, m.Type())
	}
	c := m.Clone()
	defer c.Close()

	out := NewGray(c.Cols(), c.Rows())
	copy(out.Pix, c.ToBytes())
	return out, nil
}

// EncodePNG encodes a matrix as PNG bytes.
func EncodePNG(m gocv.Mat) ([]byte, error) {
	if m.Empty() {
		return nil, ErrEmptyPayload
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	raw := buf.GetBytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
