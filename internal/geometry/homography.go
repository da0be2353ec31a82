// Package geometry fits projective transforms to point correspondences and
// provides the planar helpers used by scoring.
package geometry

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrTooFewPoints = errors.New("geometry: need at least 4 point pairs")
	ErrDegenerate   = errors.New("geometry: degenerate point configuration")
	ErrNoModel      = errors.New("geometry: no consistent homography found")
)

type Point struct {
	X, Y float64
}

func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Homography is a row-major 3×3 projective transform.
type Homography [9]float64

func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Apply maps p through h. ok is false when p maps to infinity.
func (h Homography) Apply(p Point) (q Point, ok bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// ReprojectionError is the pixel distance between h(src) and dst, +Inf when
// src maps to infinity.
func (h Homography) ReprojectionError(src, dst Point) float64 {
	q, ok := h.Apply(src)
	if !ok {
		return math.Inf(1)
	}
	return q.Distance(dst)
}

func fromDense(m mat.Matrix) Homography {
	var h Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			h[r*3+c] = m.At(r, c)
		}
	}
	return h
}

// normalized scales h so h[8] == 1 where possible, otherwise to unit norm.
func (h Homography) normalized() Homography {
	s := h[8]
	if math.Abs(s) < 1e-12 {
		var n float64
		for _, v := range h {
			n += v * v
		}
		s = math.Sqrt(n)
	}
	if s == 0 {
		return h
	}
	for i := range h {
		h[i] /= s
	}
	return h
}

// conditioner returns the similarity moving pts to their centroid with a
// mean distance of √2 from it.
func conditioner(pts []Point) (*mat.Dense, error) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var mean float64
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	if mean < 1e-9 {
		return nil, ErrDegenerate
	}
	s := math.Sqrt2 / mean
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}), nil
}

func transform(t *mat.Dense, p Point) Point {
	return Point{
		X: t.At(0, 0)*p.X + t.At(0, 1)*p.Y + t.At(0, 2),
		Y: t.At(1, 0)*p.X + t.At(1, 1)*p.Y + t.At(1, 2),
	}
}

// DLT estimates the homography mapping src onto dst with the normalized
// direct linear transform. Four pairs give an exact fit, more a least
// squares one.
func DLT(src, dst []Point) (Homography, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return Homography{}, ErrTooFewPoints
	}
	ts, err := conditioner(src)
	if err != nil {
		return Homography{}, err
	}
	td, err := conditioner(dst)
	if err != nil {
		return Homography{}, err
	}

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := range src {
		s := transform(ts, src[i])
		d := transform(td, dst[i])
		a.SetRow(2*i, []float64{
			-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y,
		})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Homography{}, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)

	// The null vector belongs to the smallest singular value, the last
	// column of V.
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	var tdInv mat.Dense
	if err := tdInv.Inverse(td); err != nil {
		return Homography{}, ErrDegenerate
	}
	var tmp, h mat.Dense
	tmp.Mul(&tdInv, hn)
	h.Mul(&tmp, ts)

	out := fromDense(&h).normalized()
	for _, x := range out {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Homography{}, ErrDegenerate
		}
	}
	return out, nil
}
