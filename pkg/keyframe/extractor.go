package keyframe

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"

	"gocv.io/x/gocv"

	"github.com/DGQW1/calhack-backend/internal/log"
)

// defaultFPS is assumed when a capture cannot report its frame rate.
const defaultFPS = 30.0

// Extractor decodes reconstructed WebM bytes into ordered raster frames. The
// bytes are first re-encoded through ffmpeg into a fragmented MP4, which
// tolerates the discontinuous timestamps of a live chunk stream, then read
// frame by frame.
type Extractor struct {
	ffmpegPath string
}

// NewExtractor locates the ffmpeg binary (FFMPEG_BINARY env var or PATH).
// A missing binary is a setup error, not a per-chunk one.
func NewExtractor() (*Extractor, error) {
	path := os.Getenv("FFMPEG_BINARY")
	if path == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		path = p
	}
	log.Info("using ffmpeg binary", "path", path)
	return &Extractor{ffmpegPath: path}, nil
}

// Decode extracts all frames from accumulated stream bytes. It never fails
// loudly: truncated or corrupt input is routine in live streaming and yields
// (nil, 0). Returned Mats are owned by the caller and must be Closed.
func (e *Extractor) Decode(data []byte) ([]gocv.Mat, float64) {
	if len(data) == 0 {
		return nil, 0
	}

	input, err := writeTemp("chunk-*.webm", data)
	if err != nil {
		log.Warn("write temp chunk", "error", err)
		return nil, 0
	}
	defer os.Remove(input)

	output, err := writeTemp("chunk-*.mp4", nil)
	if err != nil {
		log.Warn("write temp output", "error", err)
		return nil, 0
	}
	defer os.Remove(output)

	if stderr, err := e.transcode(input, output); err != nil {
		if isIncompleteStream(stderr) {
			// Routine for fragmented streams; the rolling window will
			// eventually include the data we need.
			log.Debug("skipping incomplete WebM chunk")
			return nil, 0
		}
		log.Warn("ffmpeg conversion failed", "stderr", truncate(stderr, 200))
		// Best-effort direct read before giving up.
		return readFrames(input)
	}

	return readFrames(output)
}

// transcode re-encodes the raw chunk into a normalized, seekable form.
func (e *Extractor) transcode(input, output string) (string, error) {
	cmd := exec.Command(e.ffmpegPath,
		"-fflags", "+genpts+igndts",
		"-i", input,
		"-vcodec", "libx264",
		"-preset", "ultrafast",
		"-movflags", "frag_keyframe+empty_moov",
		"-avoid_negative_ts", "make_zero",
		"-loglevel", "error",
		"-y",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// readFrames reads every frame from a video file. Open or read failures
// degrade to an empty result.
func readFrames(path string) ([]gocv.Mat, float64) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		log.Warn("open video capture", "path", path, "error", err)
		return nil, 0
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || math.IsNaN(fps) {
		fps = defaultFPS
	}

	var frames []gocv.Mat
	img := gocv.NewMat()
	defer img.Close()
	for capture.Read(&img) {
		if img.Empty() {
			continue
		}
		frames = append(frames, img.Clone())
	}

	if len(frames) == 0 {
		return nil, 0
	}
	return frames, fps
}

// isIncompleteStream recognizes decode errors expected from fragmentation.
func isIncompleteStream(stderr string) bool {
	return strings.Contains(stderr, "EBML header parsing failed") ||
		strings.Contains(stderr, "Invalid data found")
}

func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if data != nil {
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
