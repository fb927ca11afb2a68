package keyframe

import (
	"github.com/google/uuid"
)

// Candidate is a detected slide keyframe: a time-bounded interval of stable
// on-screen content with the image captured at lock time. EndMs stays nil
// while the slide is still on screen and is assigned exactly once.
type Candidate struct {
	ID         string
	LectureID  string
	SessionID  string
	StartMs    int64
	EndMs      *int64
	LockScore  float64
	Image      []byte
	Metadata   map[string]any
	CapturedAt string
	StorageURL string
	StorageKey string
}

func newCandidate(lectureID string, startMs int64, score float64, image []byte, meta map[string]any) *Candidate {
	c := &Candidate{
		ID:        "kf_" + uuid.NewString(),
		LectureID: lectureID,
		StartMs:   startMs,
		LockScore: score,
		Image:     image,
		Metadata:  meta,
	}
	if v, ok := meta["capturedAt"].(string); ok {
		c.CapturedAt = v
	}
	return c
}

// Payload returns the JSON-ready event emitted to subscribers and the
// originating connection.
func (c *Candidate) Payload() map[string]any {
	p := map[string]any{
		"type":        "keyframe_detected",
		"id":          c.ID,
		"lecture_id":  c.LectureID,
		"t_start_ms":  c.StartMs,
		"t_end_ms":    nil,
		"storage_url": c.StorageURL,
		"score":       c.LockScore,
	}
	if c.EndMs != nil {
		p["t_end_ms"] = *c.EndMs
	}
	if c.CapturedAt != "" {
		p["captured_at"] = c.CapturedAt
	}
	if seq, ok := c.Metadata["sequence"]; ok && seq != nil {
		p["sequence"] = seq
	}
	return p
}
