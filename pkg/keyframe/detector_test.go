package keyframe

import (
	"testing"

	"gocv.io/x/gocv"
)

// flatMat builds a uniform BGR frame. Flat frames survive downscale and blur
// unchanged, so SSIM between them follows the closed-form luminance term:
// identical values score 1.0, 40 vs 250 scores ~0.31.
func flatMat(v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), 36, 64, gocv.MatTypeCV8UC3)
}

func testParams() Params {
	p := DefaultParams()
	p.DownscaleWidth = 32
	p.DownscaleHeight = 18
	// Keep the baseline nearly frozen so scores stay deterministic.
	p.EMAAlpha = 0.01
	return p
}

// feed runs one flat frame through the detector.
func feed(t *testing.T, d *Detector, v float64, ts int64) []*Candidate {
	t.Helper()
	m := flatMat(v)
	defer m.Close()
	out, err := d.Process(m, ts, nil)
	if err != nil {
		t.Fatalf("Process(%v, %d): %v", v, ts, err)
	}
	return out
}

func TestDetectorLocksAtStabilityStart(t *testing.T) {
	p := testParams()
	p.MinStableDurationMs = 1000
	d := NewDetector("lec-1", p)

	// First frame only seeds the baseline.
	feed(t, d, 40, -200)

	// Stable content at t=0,200,...,800: not yet long enough.
	for ts := int64(0); ts <= 800; ts += 200 {
		if out := feed(t, d, 40, ts); len(out) != 0 {
			t.Fatalf("t=%d: got %d candidates, want 0", ts, len(out))
		}
		if d.State() != StateSearching {
			t.Fatalf("t=%d: got state %v, want searching", ts, d.State())
		}
	}

	// The t=1000 frame completes the stability window.
	if out := feed(t, d, 40, 1000); len(out) != 0 {
		t.Fatalf("lock step released %d candidates, want 0", len(out))
	}
	if d.State() != StateLocked {
		t.Fatalf("got state %v, want locked", d.State())
	}

	got := d.Flush()
	if len(got) != 1 {
		t.Fatalf("Flush: got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c.StartMs != 0 {
		t.Errorf("StartMs: got %d, want 0 (stability start, not lock time)", c.StartMs)
	}
	if c.EndMs == nil || *c.EndMs != 1000 {
		t.Errorf("EndMs: got %v, want 1000", c.EndMs)
	}
	if c.LockScore < p.TauStable {
		t.Errorf("LockScore: got %v, want >= %v", c.LockScore, p.TauStable)
	}
	if len(c.Image) == 0 {
		t.Error("captured image should not be empty")
	}
	if c.LectureID != "lec-1" {
		t.Errorf("LectureID: got %q, want lec-1", c.LectureID)
	}
}

func TestDetectorCooldownBlocksRelock(t *testing.T) {
	p := testParams()
	p.MinStableDurationMs = 0
	p.MinSlideDurationMs = 0
	p.TransitionConfirmFrames = 1
	p.CooldownMs = 1000
	d := NewDetector("lec", p)

	feed(t, d, 40, 0)   // seed
	feed(t, d, 40, 100) // lock #1, start=100
	if d.State() != StateLocked {
		t.Fatalf("got state %v, want locked", d.State())
	}

	// New slide confirms the transition immediately.
	if out := feed(t, d, 250, 200); len(out) != 0 {
		t.Fatalf("confirm step released %d candidates, want 0 (release is lock-delayed)", len(out))
	}
	if d.State() != StateSearching {
		t.Fatalf("got state %v, want searching after confirm", d.State())
	}

	// A qualifying streak inside the cooldown window must not lock.
	for ts := int64(300); ts < 1100; ts += 200 {
		if out := feed(t, d, 250, ts); len(out) != 0 {
			t.Fatalf("t=%d: locked during cooldown", ts)
		}
		if d.State() != StateSearching {
			t.Fatalf("t=%d: got state %v, want searching", ts, d.State())
		}
	}

	// Cooldown (anchored at the last lock, t=100) expires at t=1100.
	out := feed(t, d, 250, 1100)
	if d.State() != StateLocked {
		t.Fatalf("got state %v, want locked after cooldown", d.State())
	}
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1 (pending released on next lock)", len(out))
	}
	if out[0].EndMs == nil || *out[0].EndMs != 200 {
		t.Errorf("EndMs: got %v, want 200", out[0].EndMs)
	}
}

func TestDetectorTransitionCounterResets(t *testing.T) {
	p := testParams()
	p.MinStableDurationMs = 0
	p.MinSlideDurationMs = 0
	p.CooldownMs = 0
	p.TransitionConfirmFrames = 3
	d := NewDetector("lec", p)

	feed(t, d, 40, 0)
	feed(t, d, 40, 100) // lock

	// Two flagged frames, then content reverts to the locked slide.
	feed(t, d, 250, 200)
	feed(t, d, 250, 300)
	feed(t, d, 40, 400)
	if d.State() != StateLocked {
		t.Fatal("reversion must cancel the nascent transition, candidate stays open")
	}
	if d.transitionFrames != 0 {
		t.Errorf("transitionFrames: got %d, want 0", d.transitionFrames)
	}

	// Three consecutive flagged frames confirm.
	feed(t, d, 250, 500)
	feed(t, d, 250, 600)
	feed(t, d, 250, 700)
	if d.State() != StateSearching {
		t.Fatalf("got state %v, want searching after confirm", d.State())
	}

	got := d.Flush()
	if len(got) != 1 {
		t.Fatalf("Flush: got %d candidates, want 1", len(got))
	}
	if got[0].EndMs == nil || *got[0].EndMs != 700 {
		t.Errorf("EndMs: got %v, want 700", got[0].EndMs)
	}
}

func TestDetectorMinSlideDurationGatesCounter(t *testing.T) {
	p := testParams()
	p.MinStableDurationMs = 0
	p.CooldownMs = 0
	p.MinSlideDurationMs = 1500
	p.TransitionConfirmFrames = 8
	d := NewDetector("lec", p)

	feed(t, d, 40, 0)    // seed
	feed(t, d, 250, 800) // unstable, nudges the baseline
	feed(t, d, 40, 1000) // stable again, locks with start=1000
	if d.State() != StateLocked {
		t.Fatal("expected lock at t=1000")
	}

	// Flagged frames every 100ms. Elapsed time since lock reaches
	// min_slide_duration only at t=2500, so the counter starts there and
	// the 8th flagged frame past that point lands at t=3200.
	for ts := int64(1200); ts <= 3100; ts += 100 {
		feed(t, d, 250, ts)
		if d.State() != StateLocked {
			t.Fatalf("t=%d: got state %v, want locked", ts, d.State())
		}
	}
	feed(t, d, 250, 3200)
	if d.State() != StateSearching {
		t.Fatal("expected confirmed transition at t=3200")
	}

	got := d.Flush()
	if len(got) != 1 {
		t.Fatalf("Flush: got %d candidates, want 1", len(got))
	}
	if got[0].StartMs != 1000 {
		t.Errorf("StartMs: got %d, want 1000", got[0].StartMs)
	}
	if got[0].EndMs == nil || *got[0].EndMs != 3200 {
		t.Errorf("EndMs: got %v, want 3200", got[0].EndMs)
	}
}

func TestDetectorFlushIdempotent(t *testing.T) {
	d := NewDetector("lec", testParams())

	if got := d.Flush(); len(got) != 0 {
		t.Errorf("first Flush: got %d candidates, want 0", len(got))
	}
	if got := d.Flush(); len(got) != 0 {
		t.Errorf("second Flush: got %d candidates, want 0", len(got))
	}

	// Seeding without locking leaves nothing to flush either.
	feed(t, d, 40, 0)
	feed(t, d, 40, 100)
	if got := d.Flush(); len(got) != 0 {
		t.Errorf("Flush without lock: got %d candidates, want 0", len(got))
	}
}

func TestPreprocessDimensions(t *testing.T) {
	p := testParams()
	m := flatMat(128)
	defer m.Close()

	g, err := Preprocess(m, p)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if g.W != p.DownscaleWidth || g.H != p.DownscaleHeight {
		t.Errorf("dimensions: got %dx%d, want %dx%d", g.W, g.H, p.DownscaleWidth, p.DownscaleHeight)
	}
	for i, v := range g.Pix {
		if v < 127 || v > 129 {
			t.Fatalf("pix %d: got %v, want ~128", i, v)
		}
	}
}

func TestProcessEmptyFrame(t *testing.T) {
	d := NewDetector("lec", testParams())
	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := d.Process(empty, 0, nil); err == nil {
		t.Error("expected error for empty frame")
	}
}
