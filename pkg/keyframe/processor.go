package keyframe

import (
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/DGQW1/calhack-backend/internal/log"
	"github.com/DGQW1/calhack-backend/pkg/storage"
)

// FrameDecoder turns reconstructed container bytes into ordered frames plus
// the reported frame rate. A zero frame rate means nothing was decodable.
type FrameDecoder interface {
	Decode(data []byte) ([]gocv.Mat, float64)
}

// Processor drives the keyframe pipeline for a single stream connection:
// reassemble fragments, decode, dedup already-seen frames, run the detector
// and persist + fan out every completed candidate. Fragments must be fed in
// arrival order; nothing on the per-chunk path is fatal.
type Processor struct {
	lectureID string
	sessionID string

	assembler   *Assembler
	decoder     FrameDecoder
	detector    *Detector
	store       storage.Storage
	broadcaster *Broadcaster

	// frameCursor counts frames already fed to the detector from prior
	// reconstructions. It never decreases.
	frameCursor int

	processedChunks int
	framesProcessed int
	keyframes       int
}

// NewProcessor composes a per-connection pipeline.
func NewProcessor(lectureID, sessionID string, params Params, decoder FrameDecoder, store storage.Storage, broadcaster *Broadcaster) *Processor {
	return &Processor{
		lectureID:   lectureID,
		sessionID:   sessionID,
		assembler:   NewAssembler(DefaultMaxFragments),
		decoder:     decoder,
		detector:    NewDetector(lectureID, params),
		store:       store,
		broadcaster: broadcaster,
	}
}

// Process feeds one fragment through the pipeline. Candidates completed by
// this fragment are persisted and delivered to the broadcaster plus the
// originating connection.
func (p *Processor) Process(chunk []byte, meta map[string]any, direct Subscriber) {
	if meta == nil {
		meta = map[string]any{}
	}
	sequence := metaSequence(meta)

	data := p.assembler.Add(chunk)
	if data == nil {
		log.Debug("waiting for init segment", "sequence", sequence)
		return
	}
	p.processedChunks++

	frames, fps := p.decoder.Decode(data)
	if len(frames) == 0 {
		log.Debug("no frames extracted from accumulated stream", "sequence", sequence)
		return
	}

	total := len(frames)
	log.Info("extracted frames from accumulated stream",
		"sequence", sequence, "total", total, "fps", fps, "cursor", p.frameCursor)

	if total <= p.frameCursor {
		// Every frame in this reconstruction was already processed.
		log.Debug("no new frames", "sequence", sequence, "cursor", p.frameCursor, "total", total)
		closeFrames(frames)
		return
	}

	baseMs := parseCapturedAt(meta["capturedAt"])
	orientation := metaOrientation(meta)
	var frameInterval float64
	if fps > 0 {
		frameInterval = 1000.0 / fps
	}

	// The reconstruction redecodes init + window from scratch, so the frame
	// sequence is a prefix-extension of the last one: skip the prefix, feed
	// only the new suffix.
	for idx, raw := range frames {
		if idx < p.frameCursor {
			raw.Close()
			continue
		}

		frame := applyOrientation(raw, orientation)
		timestampMs := baseMs + int64(float64(idx)*frameInterval)

		completed, err := p.detector.Process(frame, timestampMs, meta)
		frame.Close()
		p.framesProcessed++
		if err != nil {
			log.Warn("frame processing failed", "sequence", sequence, "error", err)
			continue
		}

		for _, c := range completed {
			p.persistAndEmit(c, direct)
		}
	}
	p.frameCursor = total
}

// Finalize flushes the detector and emits anything still open. It must run on
// every teardown path so an open candidate is closed and released exactly
// once.
func (p *Processor) Finalize(direct Subscriber) {
	log.Info("finalizing stream processor",
		"lecture_id", p.lectureID, "chunks", p.processedChunks,
		"frames", p.framesProcessed, "keyframes", p.keyframes)
	for _, c := range p.detector.Flush() {
		p.persistAndEmit(c, direct)
	}
}

// FramesProcessed returns how many unique frames reached the detector.
func (p *Processor) FramesProcessed() int {
	return p.framesProcessed
}

// Keyframes returns how many candidates were persisted and emitted.
func (p *Processor) Keyframes() int {
	return p.keyframes
}

func (p *Processor) persistAndEmit(c *Candidate, direct Subscriber) {
	c.SessionID = p.sessionID

	result, err := p.store.Store(c.Image, c.ID+".jpg", p.sessionID)
	if err != nil {
		// Drop this candidate only; the stream continues.
		log.Error("failed to store slide image, dropping candidate",
			"keyframe_id", c.ID, "error", err)
		return
	}
	c.StorageURL = result.URL
	c.StorageKey = result.Key

	payload := c.Payload()
	log.Info("slide keyframe detected",
		"lecture_id", c.LectureID, "keyframe_id", c.ID,
		"t_start_ms", c.StartMs, "t_end_ms", payload["t_end_ms"],
		"storage_url", c.StorageURL)
	p.keyframes++

	p.broadcaster.Broadcast(payload)

	if direct != nil {
		if err := direct.WriteJSON(payload); err != nil {
			// Connection may already be gone; expected during shutdown.
			log.Debug("direct keyframe send failed", "keyframe_id", c.ID, "error", err)
		}
	}
}

// applyOrientation rotates a frame according to the capture orientation in
// degrees. It takes ownership of src; the returned Mat is the one to Close.
func applyOrientation(src gocv.Mat, orientation int) gocv.Mat {
	var code gocv.RotateFlag
	switch orientation {
	case 90, -270:
		code = gocv.Rotate90Clockwise
	case 180, -180:
		code = gocv.Rotate180
	case 270, -90:
		code = gocv.Rotate90CounterClockwise
	default:
		return src
	}
	dst := gocv.NewMat()
	gocv.Rotate(src, &dst, code)
	src.Close()
	return dst
}

// parseCapturedAt converts an ISO-8601 capture timestamp to epoch
// milliseconds, falling back to the current time.
func parseCapturedAt(v any) int64 {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Now().UnixMilli()
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

// metaOrientation reads the capture orientation, which clients send either as
// a number or a string.
func metaOrientation(meta map[string]any) int {
	switch v := meta["orientation"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func metaSequence(meta map[string]any) any {
	if seq, ok := meta["sequence"]; ok && seq != nil {
		return seq
	}
	return "?"
}

func closeFrames(frames []gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
