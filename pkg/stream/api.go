package stream

import (
	"github.com/gofiber/fiber/v2"
)

// Stats reports aggregate server counters.
type Stats struct {
	Connections      int64  `json:"connections"`
	Subscribers      int    `json:"subscribers"`
	ChunksReceived   uint64 `json:"chunks_received"`
	BytesReceived    uint64 `json:"bytes_received"`
	FramesProcessed  uint64 `json:"frames_processed"`
	KeyframesEmitted uint64 `json:"keyframes_emitted"`
}

// addProgress folds newly processed frame and keyframe counts into the
// aggregate stats, keeping /api/stats live while streams are active.
func (s *Server) addProgress(frames, keyframes int) {
	if frames > 0 {
		s.framesTotal.Add(uint64(frames))
	}
	if keyframes > 0 {
		s.keyframesTotal.Add(uint64(keyframes))
	}
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(Stats{
		Connections:      s.connections.Load(),
		Subscribers:      s.broadcaster.Count(),
		ChunksReceived:   s.chunksReceived.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		FramesProcessed:  s.framesTotal.Load(),
		KeyframesEmitted: s.keyframesTotal.Load(),
	})
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	sessions := s.cfg.Recordings.Sessions()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	session := s.cfg.Recordings.Get(c.Params("id"))
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	return c.JSON(session.Info())
}

func (s *Server) handleRecording(c *fiber.Ctx) error {
	session := s.cfg.Recordings.Get(c.Params("id"))
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	path := session.RecordingPath()
	if path == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "recording not compiled"})
	}
	return c.SendFile(path)
}
