package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/internal/imaging"
)

func bar(w, h, y0, y1, x0, x1 int) imaging.Gray {
	g := imaging.NewGray(w, h)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			g.Pix[y*w+x] = 255
		}
	}
	return g
}

func TestThinBarToLine(t *testing.T) {
	in := bar(40, 20, 7, 13, 5, 35)
	out := Thin(in)

	require.Equal(t, in.Width, out.Width)
	require.Equal(t, in.Height, out.Height)
	assert.Greater(t, out.CountNonZero(), 10)
	assert.Less(t, out.CountNonZero(), in.CountNonZero()/3)

	// No column through the middle of the bar keeps more than one pixel.
	for x := 10; x < 30; x++ {
		n := 0
		for y := 0; y < out.Height; y++ {
			if out.At(x, y) != 0 {
				n++
			}
		}
		assert.Equal(t, 1, n, "column %d", x)
	}
}

func TestThinNoSolidBlocks(t *testing.T) {
	in := bar(30, 30, 5, 25, 5, 25)
	out := Thin(in)
	for y := 0; y+1 < out.Height; y++ {
		for x := 0; x+1 < out.Width; x++ {
			solid := out.At(x, y) != 0 && out.At(x+1, y) != 0 &&
				out.At(x, y+1) != 0 && out.At(x+1, y+1) != 0
			require.False(t, solid, "2x2 block at %d,%d", x, y)
		}
	}
}

func TestThinKeepsLinesAndBlank(t *testing.T) {
	line := bar(20, 5, 2, 3, 2, 18)
	assert.Equal(t, line, Thin(line))

	blank := imaging.NewGray(8, 8)
	assert.Equal(t, 0, Thin(blank).CountNonZero())

	assert.True(t, Thin(imaging.Gray{}).Empty())
}

func TestThinDoesNotMutateInput(t *testing.T) {
	in := bar(20, 20, 4, 16, 4, 16)
	before := in.Clone()
	_ = Thin(in)
	assert.Equal(t, before, in)
}
