package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func checker(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 200})
			}
		}
	}
	return img
}

func TestGrayBasics(t *testing.T) {
	g := NewGray(3, 2)
	assert.False(t, g.Empty())
	assert.Equal(t, 6, len(g.Pix))

	g.Pix[4] = 9
	assert.Equal(t, uint8(9), g.At(1, 1))
	assert.Equal(t, uint8(0), g.At(-1, 0))
	assert.Equal(t, uint8(0), g.At(3, 0))
	assert.Equal(t, 1, g.CountNonZero())
	assert.InDelta(t, 1.5, g.Mean(), 1e-9)

	c := g.Clone()
	c.Pix[4] = 0
	assert.Equal(t, uint8(9), g.At(1, 1), "clone must not alias")

	assert.True(t, Gray{}.Empty())
	assert.True(t, Gray{Width: 2, Height: 2, Pix: []uint8{1}}.Empty())
	assert.Zero(t, Gray{}.Mean())
}

func TestFromImageHonoursBounds(t *testing.T) {
	src := checker(6, 6)
	sub := src.SubImage(image.Rect(1, 1, 4, 3))

	g := FromImage(sub)
	require.Equal(t, 3, g.Width)
	require.Equal(t, 2, g.Height)
	assert.Equal(t, src.GrayAt(1, 1).Y, g.At(0, 0))
	assert.Equal(t, src.GrayAt(2, 1).Y, g.At(1, 0))
	assert.Equal(t, src.GrayAt(3, 2).Y, g.At(2, 1))
}

func TestFromImageColour(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	assert.Equal(t, uint8(255), FromImage(img).At(0, 0))
}

func TestStdRoundTrip(t *testing.T) {
	g := FromImage(checker(4, 4))
	back := FromImage(g.Std())
	assert.Equal(t, g, back)
}

func TestDecodeRegisteredFormats(t *testing.T) {
	src := checker(5, 4)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, src))
	img, format, err := Decode(pngBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, FromImage(src), FromImage(img))

	var bmpBuf bytes.Buffer
	require.NoError(t, bmp.Encode(&bmpBuf, src))
	_, format, err = Decode(bmpBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "bmp", format)
}

func TestDecodeNetpbm(t *testing.T) {
	data := append([]byte("P5\n2 2\n255\n"), 0, 64, 128, 255)
	g, err := DecodeGray(data)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 64, 128, 255}, g.Pix)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, _, err = Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSniffers(t *testing.T) {
	assert.True(t, isWSQ([]byte{0xFF, 0xA0, 0xFF, 0xA8}))
	assert.False(t, isWSQ([]byte{0xFF, 0xD8}))

	assert.True(t, isNetpbm([]byte("P2\n")))
	assert.True(t, isNetpbm([]byte("P6 ")))
	assert.False(t, isNetpbm([]byte("P9\n")))
	assert.False(t, isNetpbm([]byte("PK\x03\x04")))
}
