package keyframe

// Gray is a downscaled single-channel luminance plane used for similarity
// scoring. Pixel values are float32 in [0, 255].
type Gray struct {
	W, H int
	Pix  []float32
}

// NewGray allocates a zeroed luminance plane.
func NewGray(w, h int) *Gray {
	return &Gray{W: w, H: h, Pix: make([]float32, w*h)}
}

// Clone returns a deep copy.
func (g *Gray) Clone() *Gray {
	c := &Gray{W: g.W, H: g.H, Pix: make([]float32, len(g.Pix))}
	copy(c.Pix, g.Pix)
	return c
}

// Blend updates g in place as an exponential moving average:
// g = alpha*p + (1-alpha)*g. Both planes must have the same dimensions.
func (g *Gray) Blend(p *Gray, alpha float64) {
	a := float32(alpha)
	for i, v := range p.Pix {
		g.Pix[i] = a*v + (1-a)*g.Pix[i]
	}
}
