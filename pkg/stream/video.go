package stream

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/DGQW1/calhack-backend/internal/log"
	"github.com/DGQW1/calhack-backend/pkg/keyframe"
)

// handleVideo runs one live ingest connection. Clients send a JSON text
// message with chunk metadata followed by the binary chunk itself; metadata
// is queued and paired with the next binary message in order.
func (s *Server) handleVideo(c *websocket.Conn) {
	lectureID := c.Query("lecture_id")
	if lectureID == "" {
		lectureID = c.Headers("X-Lecture-Id")
	}
	if lectureID == "" {
		lectureID = s.cfg.DefaultLectureID
	}

	session, err := s.cfg.Recordings.Create()
	if err != nil {
		log.Warn("recording session unavailable", "error", err)
	}
	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}

	processor := keyframe.NewProcessor(lectureID, sessionID, s.cfg.Params, s.cfg.Extractor, s.cfg.Store, s.broadcaster)

	s.connections.Add(1)
	start := time.Now().UTC()
	logger := log.With("lecture_id", lectureID, "session_id", sessionID)
	logger.Info("video stream connected")

	var chunks, bytesReceived int64
	var framesSeen, keyframesSeen int

	// noteProgress feeds per-chunk deltas into the server stats so an
	// active stream is visible in /api/stats, not just after teardown.
	noteProgress := func() {
		s.addProgress(processor.FramesProcessed()-framesSeen, processor.Keyframes()-keyframesSeen)
		framesSeen = processor.FramesProcessed()
		keyframesSeen = processor.Keyframes()
	}

	// Finalize must run on every teardown path so open candidates are
	// closed and released exactly once.
	defer func() {
		processor.Finalize(c)
		noteProgress()
		if session != nil {
			if _, err := session.Finalize(); err != nil {
				logger.Warn("recording finalize failed", "error", err)
			}
		}
		s.connections.Add(-1)

		// Best effort; the peer is often already gone.
		c.WriteJSON(map[string]any{
			"type":            "connection_summary",
			"stream_type":     "video",
			"lecture_id":      lectureID,
			"session_id":      sessionID,
			"chunks_received": chunks,
			"bytes_received":  bytesReceived,
			"started_at":      start.Format(time.RFC3339Nano),
			"ended_at":        time.Now().UTC().Format(time.RFC3339Nano),
		})
		logger.Info("video stream closed", "chunks", chunks, "bytes", bytesReceived)
	}()

	if err := c.WriteJSON(map[string]any{
		"type":        "connection_ack",
		"stream_type": "video",
		"received_at": start.Format(time.RFC3339Nano),
		"lecture_id":  lectureID,
		"session_id":  sessionID,
	}); err != nil {
		logger.Debug("connection ack failed", "error", err)
		return
	}

	var metadataQueue []map[string]any

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("video stream read ended", "error", err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if meta := parseClientMetadata(data); meta != nil {
				metadataQueue = append(metadataQueue, meta)
			}

		case websocket.BinaryMessage:
			chunks++
			bytesReceived += int64(len(data))
			s.chunksReceived.Add(1)
			s.bytesReceived.Add(uint64(len(data)))

			var meta map[string]any
			if len(metadataQueue) > 0 {
				meta = metadataQueue[0]
				metadataQueue = metadataQueue[1:]
			}

			if session != nil {
				if err := session.AddChunk(data); err != nil {
					logger.Warn("recording chunk failed", "error", err)
				}
			}

			processor.Process(data, meta, c)
			noteProgress()
		}
	}
}

// parseClientMetadata parses a JSON object from a text control message.
// Anything else is ignored.
func parseClientMetadata(data []byte) map[string]any {
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return meta
}
