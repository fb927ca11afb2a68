// Keyframe backend - receives live video WebSocket streams and detects
// slide keyframes.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DGQW1/calhack-backend/internal/config"
	"github.com/DGQW1/calhack-backend/internal/log"
	"github.com/DGQW1/calhack-backend/pkg/keyframe"
	"github.com/DGQW1/calhack-backend/pkg/recording"
	"github.com/DGQW1/calhack-backend/pkg/storage"
	"github.com/DGQW1/calhack-backend/pkg/stream"
)

func main() {
	log.Init(config.String("LOG_LEVEL", "info"))
	ctx := context.Background()

	// Collaborators that cannot be constructed are fatal here, at setup;
	// nothing on the per-chunk path is.
	store, err := storage.FromEnv(ctx)
	if err != nil {
		log.Error("slide storage init failed", "error", err)
		os.Exit(1)
	}

	extractor, err := keyframe.NewExtractor()
	if err != nil {
		log.Error("frame extractor init failed", "error", err)
		os.Exit(1)
	}

	recordings, err := recording.NewManager(config.String("RECORDING_DIR", "recordings"))
	if err != nil {
		log.Error("recording manager init failed", "error", err)
		os.Exit(1)
	}

	if config.Bool("RECORDING_CLEANUP", true) {
		maxAge := time.Duration(config.Int("RECORDING_MAX_AGE_HOURS", 24)) * time.Hour
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				recordings.CleanupOlderThan(maxAge)
			}
		}()
	}

	srv := stream.NewServer(stream.Config{
		Params:           paramsFromEnv(),
		Store:            store,
		Extractor:        extractor,
		Recordings:       recordings,
		DefaultLectureID: config.String("DEFAULT_LECTURE_ID", "default"),
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		srv.Shutdown()
	}()

	addr := ":" + config.String("PORT", "8000")
	log.Info("starting keyframe backend", "addr", addr)
	if err := srv.Start(addr); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// paramsFromEnv overlays SLIDE_* env vars on the default detection
// parameters.
func paramsFromEnv() keyframe.Params {
	p := keyframe.DefaultParams()
	p.TauStable = config.Float("SLIDE_TAU_STABLE", p.TauStable)
	p.TauChange = config.Float("SLIDE_TAU_CHANGE", p.TauChange)
	p.MinStableDurationMs = int64(config.Int("SLIDE_MIN_STABLE_MS", int(p.MinStableDurationMs)))
	p.TransitionConfirmFrames = config.Int("SLIDE_TRANSITION_FRAMES", p.TransitionConfirmFrames)
	p.CooldownMs = int64(config.Int("SLIDE_COOLDOWN_MS", int(p.CooldownMs)))
	p.EMAAlpha = config.Float("SLIDE_EMA_ALPHA", p.EMAAlpha)
	p.DownscaleWidth = config.Int("SLIDE_DOWNSCALE_WIDTH", p.DownscaleWidth)
	p.DownscaleHeight = config.Int("SLIDE_DOWNSCALE_HEIGHT", p.DownscaleHeight)
	p.SlideChangeSSIM = config.Float("SLIDE_CHANGE_SSIM", p.SlideChangeSSIM)
	p.MinSlideDurationMs = int64(config.Int("SLIDE_MIN_SLIDE_DURATION_MS", int(p.MinSlideDurationMs)))
	return p
}
