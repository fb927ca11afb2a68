package keyframe

import (
	"math"
	"testing"
)

func flatGray(w, h int, v float32) *Gray {
	g := NewGray(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestSSIMIdenticalImages(t *testing.T) {
	a := flatGray(32, 18, 128)
	b := flatGray(32, 18, 128)

	if got := SSIM(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("got %v, want 1.0", got)
	}
}

func TestSSIMFlatImagesLuminanceOnly(t *testing.T) {
	// Flat images have zero variance, so only the luminance term matters:
	// (2*ma*mb + C1) / (ma^2 + mb^2 + C1).
	tests := []struct {
		name string
		a, b float64
	}{
		{name: "close values", a: 100, b: 110},
		{name: "distinct slides", a: 60, b: 220},
		{name: "extreme contrast", a: 10, b: 250},
	}

	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SSIM(flatGray(32, 18, float32(tc.a)), flatGray(32, 18, float32(tc.b)))
			want := (2*tc.a*tc.b + c1) / (tc.a*tc.a + tc.b*tc.b + c1)
			if math.Abs(got-want) > 1e-6 {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestSSIMMismatchedDimensions(t *testing.T) {
	a := flatGray(32, 18, 128)
	b := flatGray(16, 9, 128)

	if got := SSIM(a, b); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestSSIMSmallerThanWindow(t *testing.T) {
	// Images below the window size score as a single full-image window.
	a := flatGray(4, 4, 50)
	b := flatGray(4, 4, 50)

	if got := SSIM(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("got %v, want 1.0", got)
	}
}

func TestSSIMStructuralChange(t *testing.T) {
	// A checkerboard against a flat image of the same mean: luminance terms
	// match but structure does not, so the score must drop well below 1.
	a := flatGray(32, 18, 128)
	b := NewGray(32, 18)
	for y := 0; y < b.H; y++ {
		for x := 0; x < b.W; x++ {
			if (x+y)%2 == 0 {
				b.Pix[y*b.W+x] = 255
			}
		}
	}

	if got := SSIM(a, b); got > 0.5 {
		t.Errorf("got %v, want < 0.5", got)
	}
}

func TestGrayBlend(t *testing.T) {
	g := flatGray(2, 2, 100)
	p := flatGray(2, 2, 200)

	g.Blend(p, 0.25)

	for i, v := range g.Pix {
		if math.Abs(float64(v)-125) > 1e-4 {
			t.Errorf("pix %d: got %v, want 125", i, v)
		}
	}
}
