package stream

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/DGQW1/calhack-backend/internal/log"
)

const (
	// writeWait is how long to wait for a control write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// pingWriter sends websocket control frames. Control writes are safe
// alongside a concurrent data writer.
type pingWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// handleKeyframes serves a subscriber connection: register with the
// broadcaster, then hold the connection open until the peer goes away.
// Delivery happens from the broadcaster; the read loop only detects
// disconnects. All data writes, the ack included, go through the
// write-serialized handle returned by Register.
func (s *Server) handleKeyframes(c *websocket.Conn) {
	sub := s.broadcaster.Register(c)
	defer s.broadcaster.Unregister(c)

	if err := sub.WriteJSON(map[string]any{
		"type":        "connection_ack",
		"stream_type": "keyframes",
		"received_at": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		log.Debug("subscriber ack failed", "error", err)
		return
	}

	c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := make(chan struct{})
	defer close(stop)
	go keepAlive(c, pingPeriod, stop)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// keepAlive pings the peer every period until stop closes or a write fails.
// A peer that stops answering trips the read deadline and tears the
// connection down instead of lingering until the next broadcast.
func keepAlive(c pingWriter, period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
