package keyframe

// Mean structural similarity over luminance planes: uniform 7x7 sliding
// window, K1=0.01, K2=0.03, dynamic range 255. Scores are not clamped and can
// dip slightly below zero for degenerate inputs.

const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	ssimRange  = 255.0
)

// SSIM computes the mean structural similarity between two equally sized
// luminance planes. Images smaller than the window are scored as a single
// full-image window.
func SSIM(a, b *Gray) float64 {
	if a.W != b.W || a.H != b.H || a.W == 0 || a.H == 0 {
		return 0
	}

	w, h := a.W, a.H
	win := ssimWindow
	if win > w {
		win = w
	}
	if win > h {
		win = h
	}

	// Integral images over a, b, a2, b2 and ab make every window sum O(1).
	ia := integral(a.Pix, nil, w, h)
	ib := integral(b.Pix, nil, w, h)
	iaa := integral(a.Pix, a.Pix, w, h)
	ibb := integral(b.Pix, b.Pix, w, h)
	iab := integral(a.Pix, b.Pix, w, h)

	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	c2 := (ssimK2 * ssimRange) * (ssimK2 * ssimRange)
	n := float64(win * win)

	var sum float64
	var windows int
	for y := 0; y+win <= h; y++ {
		for x := 0; x+win <= w; x++ {
			sa := windowSum(ia, w, x, y, win)
			sb := windowSum(ib, w, x, y, win)
			saa := windowSum(iaa, w, x, y, win)
			sbb := windowSum(ibb, w, x, y, win)
			sab := windowSum(iab, w, x, y, win)

			ma := sa / n
			mb := sb / n
			var va, vb, cov float64
			if n > 1 {
				va = (saa - sa*sa/n) / (n - 1)
				vb = (sbb - sb*sb/n) / (n - 1)
				cov = (sab - sa*sb/n) / (n - 1)
			}

			num := (2*ma*mb + c1) * (2*cov + c2)
			den := (ma*ma + mb*mb + c1) * (va + vb + c2)
			sum += num / den
			windows++
		}
	}

	if windows == 0 {
		return 0
	}
	return sum / float64(windows)
}

// integral builds a summed-area table of p (or p*q when q is non-nil).
// The table has (h+1)*(w+1) entries with a zero first row and column.
func integral(p, q []float32, w, h int) []float64 {
	t := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row float64
		for x := 0; x < w; x++ {
			v := float64(p[y*w+x])
			if q != nil {
				v *= float64(q[y*w+x])
			}
			row += v
			t[(y+1)*(w+1)+(x+1)] = t[y*(w+1)+(x+1)] + row
		}
	}
	return t
}

func windowSum(t []float64, w, x, y, win int) float64 {
	stride := w + 1
	return t[(y+win)*stride+(x+win)] - t[y*stride+(x+win)] - t[(y+win)*stride+x] + t[y*stride+x]
}
