// Package stream exposes the websocket ingest endpoint, the keyframe
// subscriber endpoint and the management API.
package stream

import (
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberws "github.com/gofiber/websocket/v2"

	"github.com/DGQW1/calhack-backend/pkg/keyframe"
	"github.com/DGQW1/calhack-backend/pkg/recording"
	"github.com/DGQW1/calhack-backend/pkg/storage"
)

// Config carries the collaborators a Server composes per connection.
type Config struct {
	Params           keyframe.Params
	Store            storage.Storage
	Extractor        *keyframe.Extractor
	Recordings       *recording.Manager
	DefaultLectureID string
}

// Server owns the shared broadcaster and builds one independent pipeline per
// live connection.
type Server struct {
	app *fiber.App
	cfg Config

	broadcaster *keyframe.Broadcaster

	// Stats
	connections    atomic.Int64
	chunksReceived atomic.Uint64
	bytesReceived  atomic.Uint64
	framesTotal    atomic.Uint64
	keyframesTotal atomic.Uint64
}

// NewServer wires routes on a fresh fiber app.
func NewServer(cfg Config) *Server {
	if cfg.DefaultLectureID == "" {
		cfg.DefaultLectureID = "default"
	}
	s := &Server{
		cfg:         cfg,
		broadcaster: keyframe.NewBroadcaster(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Keyframe Backend",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/sessions", s.handleSessions)
	api.Get("/sessions/:id", s.handleSession)
	api.Get("/sessions/:id/recording", s.handleRecording)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/video", websocket.New(s.handleVideo))
	app.Get("/ws/keyframes", fiberws.New(s.handleKeyframes))

	s.app = app
	return s
}

// Broadcaster returns the shared keyframe broadcaster.
func (s *Server) Broadcaster() *keyframe.Broadcaster {
	return s.broadcaster
}

// Start listens on the given address. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
