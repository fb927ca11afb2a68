package keyframe

// Params holds all tunable parameters for slide keyframe detection.
type Params struct {
	// Stability
	TauStable           float64 // SSIM to baseline above this counts as stable content
	TauChange           float64 // SSIM to baseline at or below this flags a content change
	MinStableDurationMs int64   // Stability required before locking onto a slide

	// Transition
	TransitionConfirmFrames int     // Consecutive flagged frames needed to confirm a transition
	CooldownMs              int64   // Minimum gap between locks
	MinSlideDurationMs      int64   // Ignore change flags earlier than this after a lock
	SlideChangeSSIM         float64 // SSIM to the locked reference at or below this flags a change

	// Baseline
	EMAAlpha float64 // Baseline update rate while searching (quartered while locked)

	// Preprocessing
	DownscaleWidth  int
	DownscaleHeight int
}

// DefaultParams returns the recommended parameters for real-world lecture
// video, where webcam noise, compression artifacts and lighting changes keep
// SSIM well below the theoretical 1.0 even for perfectly static content.
func DefaultParams() Params {
	return Params{
		// Stability - relaxed from 0.98 to tolerate sensor noise
		TauStable:           0.90,
		TauChange:           0.75,
		MinStableDurationMs: 1000, // 1s of stability is enough to confirm a slide

		// Transition - 8 frames is roughly 0.25-0.5s at typical framerates
		TransitionConfirmFrames: 8,
		CooldownMs:              1500,
		MinSlideDurationMs:      1500,
		SlideChangeSSIM:         0.70,

		// Baseline - adapt quickly to minor lighting/movement changes
		EMAAlpha: 0.15,

		// Preprocessing
		DownscaleWidth:  320,
		DownscaleHeight: 180,
	}
}

// ConservativeParams returns parameters for slow decks with little presenter
// movement: longer stability windows and fewer spurious locks.
func ConservativeParams() Params {
	p := DefaultParams()
	p.TauStable = 0.95
	p.MinStableDurationMs = 2000
	p.CooldownMs = 3000
	p.TransitionConfirmFrames = 15
	p.MinSlideDurationMs = 3000
	return p
}
