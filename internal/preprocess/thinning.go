package preprocess

import "github.com/high-horse/fingerprint-server/internal/imaging"

// Thin reduces the foreground (non-zero pixels) of g to a one pixel wide
// skeleton with the Zhang-Suen algorithm. Output pixels are 0 or 255.
func Thin(g imaging.Gray) imaging.Gray {
	if g.Empty() {
		return imaging.Gray{}
	}
	w, h := g.Width, g.Height
	// One pixel of padding keeps neighbourhood lookups branch free.
	pw := w + 2
	cur := make([]uint8, pw*(h+2))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.Pix[y*w+x] != 0 {
				cur[(y+1)*pw+x+1] = 1
			}
		}
	}

	var remove []int
	for {
		changed := false
		for pass := 0; pass < 2; pass++ {
			remove = remove[:0]
			for y := 1; y <= h; y++ {
				for x := 1; x <= w; x++ {
					i := y*pw + x
					if cur[i] == 0 {
						continue
					}
					// P2..P9 clockwise from north.
					p2 := cur[i-pw]
					p3 := cur[i-pw+1]
					p4 := cur[i+1]
					p5 := cur[i+pw+1]
					p6 := cur[i+pw]
					p7 := cur[i+pw-1]
					p8 := cur[i-1]
					p9 := cur[i-pw-1]

					b := int(p2 + p3 + p4 + p5 + p6 + p7 + p8 + p9)
					if b < 2 || b > 6 {
						continue
					}
					if transitions(p2, p3, p4, p5, p6, p7, p8, p9) != 1 {
						continue
					}
					if pass == 0 {
						if p2*p4*p6 != 0 || p4*p6*p8 != 0 {
							continue
						}
					} else {
						if p2*p4*p8 != 0 || p2*p6*p8 != 0 {
							continue
						}
					}
					remove = append(remove, i)
				}
			}
			for _, i := range remove {
				cur[i] = 0
			}
			if len(remove) > 0 {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	out := imaging.NewGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if cur[(y+1)*pw+x+1] != 0 {
				out.Pix[y*w+x] = 255
			}
		}
	}
	return out
}

// transitions counts 0->1 steps in the circular sequence P2..P9,P2.
func transitions(p ...uint8) int {
	n := 0
	for k := range p {
		if p[k] == 0 && p[(k+1)%len(p)] == 1 {
			n++
		}
	}
	return n
}
