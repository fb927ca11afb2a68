// Package keyframe implements slide keyframe detection over fragmented live
// video streams: fragment reassembly, frame extraction, an SSIM-stability
// state machine and fan-out of detected events.
package keyframe

import (
	"gocv.io/x/gocv"

	"github.com/DGQW1/calhack-backend/internal/log"
)

// State identifies the detector phase.
type State string

const (
	// StateSearching means the detector is waiting for content to stabilize.
	StateSearching State = "searching"
	// StateLocked means the detector is tracking a slide currently on screen.
	StateLocked State = "locked"
)

// Detector is the slide keyframe state machine. It consumes decoded frames in
// timestamp order and emits completed candidates. It performs no I/O and is
// not safe for concurrent use; every connection owns its own Detector.
type Detector struct {
	lectureID string
	params    Params

	state    State
	baseline *Gray

	stableSinceMs  int64
	hasStableSince bool
	lastLockMs     int64
	hasLastLock    bool

	transitionFrames int
	current          *Candidate
	lockedRef        *Gray
	pending          []*Candidate

	lastTimestampMs int64
	hasTimestamp    bool
	frameCount      int
}

// NewDetector creates a detector with immutable parameters.
func NewDetector(lectureID string, params Params) *Detector {
	return &Detector{
		lectureID: lectureID,
		params:    params,
		state:     StateSearching,
	}
}

// State returns the current detector phase.
func (d *Detector) State() State {
	return d.state
}

// Process runs one frame through the state machine and returns candidates
// that became emittable at this step. A confirmed candidate is only released
// on the next successful lock, so every released candidate carries a final
// EndMs. The frame is only read; the caller keeps ownership.
func (d *Detector) Process(frame gocv.Mat, timestampMs int64, meta map[string]any) ([]*Candidate, error) {
	processed, err := Preprocess(frame, d.params)
	if err != nil {
		return nil, err
	}

	d.lastTimestampMs = timestampMs
	d.hasTimestamp = true

	if d.baseline == nil {
		d.baseline = processed
		return nil, nil
	}

	score := SSIM(d.baseline, processed)

	alpha := d.params.EMAAlpha
	if d.state == StateLocked {
		// Adapt the baseline slowly while locked so it does not track the
		// current slide before a real transition is confirmed.
		alpha *= 0.25
	}
	d.baseline.Blend(processed, alpha)

	if d.frameCount%15 == 0 {
		var stableFor int64
		if d.hasStableSince {
			stableFor = timestampMs - d.stableSinceMs
		}
		log.Debug("detector status",
			"state", d.state, "ssim", score,
			"stable_ms", stableFor, "tau_stable", d.params.TauStable)
	}
	d.frameCount++

	if d.state == StateSearching {
		return d.stepSearching(frame, processed, timestampMs, score, meta)
	}
	d.stepLocked(processed, timestampMs, score)
	return nil, nil
}

func (d *Detector) stepSearching(frame gocv.Mat, processed *Gray, timestampMs int64, score float64, meta map[string]any) ([]*Candidate, error) {
	p := d.params

	if score < p.TauStable {
		if d.hasStableSince {
			log.Info("content unstable, resetting", "ssim", score, "tau_stable", p.TauStable)
		}
		d.hasStableSince = false
		return nil, nil
	}

	if !d.hasStableSince {
		d.stableSinceMs = timestampMs
		d.hasStableSince = true
		log.Info("content stabilizing", "t_ms", timestampMs, "ssim", score)
	}

	stableFor := timestampMs - d.stableSinceMs
	cooldownPassed := !d.hasLastLock || timestampMs-d.lastLockMs >= p.CooldownMs
	if stableFor < p.MinStableDurationMs || !cooldownPassed {
		return nil, nil
	}

	log.Info("content-complete slide detected", "stable_ms", stableFor)
	if err := d.lock(frame, processed, d.stableSinceMs, score, meta); err != nil {
		return nil, err
	}

	// One-step-delayed release: previously confirmed candidates go out now
	// that the next lock succeeded.
	completed := d.pending
	d.pending = nil
	return completed, nil
}

// lock opens a candidate starting at the beginning of the stability streak,
// not at the current frame.
func (d *Detector) lock(frame gocv.Mat, processed *Gray, timestampMs int64, score float64, meta map[string]any) error {
	if d.current != nil {
		return nil
	}

	image, err := EncodeJPEG(frame)
	if err != nil {
		return err
	}

	d.current = newCandidate(d.lectureID, timestampMs, score, image, meta)
	d.lastLockMs = timestampMs
	d.hasLastLock = true
	d.state = StateLocked
	d.lockedRef = processed.Clone()
	log.Info("locked onto slide", "t_ms", timestampMs, "ssim", score, "keyframe_id", d.current.ID)
	return nil
}

func (d *Detector) stepLocked(processed *Gray, timestampMs int64, baselineScore float64) {
	p := d.params

	lockedScore := baselineScore
	if d.lockedRef != nil {
		lockedScore = SSIM(d.lockedRef, processed)
	}

	// A change needs both: departure from the locked slide and from the
	// slowly drifting baseline.
	flagged := lockedScore <= p.SlideChangeSSIM && baselineScore <= p.TauChange

	if flagged {
		if timestampMs-d.lastLockMs >= p.MinSlideDurationMs {
			d.transitionFrames++
			if d.transitionFrames == 1 {
				log.Info("slide transition starting",
					"t_ms", timestampMs, "locked_ssim", lockedScore, "baseline_ssim", baselineScore)
			}
		} else {
			// Premature flicker before the slide has been up long enough.
			d.transitionFrames = 0
		}
	} else {
		if d.transitionFrames > 0 {
			log.Info("false transition alarm, content stabilized again")
		}
		d.transitionFrames = 0
	}

	if d.transitionFrames < p.TransitionConfirmFrames || d.current == nil {
		return
	}

	end := timestampMs
	d.current.EndMs = &end
	log.Info("slide transition confirmed",
		"keyframe_id", d.current.ID,
		"duration_ms", timestampMs-d.current.StartMs,
		"baseline_ssim", baselineScore, "locked_ssim", lockedScore)

	d.pending = append(d.pending, d.current)
	d.current = nil
	d.state = StateSearching
	d.hasStableSince = false
	d.transitionFrames = 0
	d.lockedRef = nil
	d.baseline = processed
}

// Flush releases all queued candidates. A still-open candidate is closed with
// the last seen timestamp before release. Safe to call repeatedly; once
// nothing remains it returns an empty slice.
func (d *Detector) Flush() []*Candidate {
	completed := d.pending
	d.pending = nil

	if d.current != nil {
		if d.current.EndMs == nil {
			end := d.current.StartMs
			if d.hasTimestamp {
				end = d.lastTimestampMs
			}
			d.current.EndMs = &end
		}
		completed = append(completed, d.current)
		d.current = nil
	}
	d.lockedRef = nil

	return completed
}
