package recording

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/DGQW1/calhack-backend/internal/log"
)

// Info summarizes a recording session for the API.
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Chunks    int       `json:"chunks"`
	Bytes     int64     `json:"bytes"`
	Active    bool      `json:"active"`
	Recording string    `json:"recording,omitempty"`
}

// Session appends raw WebM chunks to disk as they arrive and compiles them
// into an MP4 on Finalize.
type Session struct {
	ID        string
	CreatedAt time.Time

	dir        string
	chunksPath string

	mu       sync.Mutex
	file     *os.File
	chunks   int
	bytes    int64
	active   bool
	compiled string
}

func newSession(id, dir string) (*Session, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	chunksPath := filepath.Join(dir, "video.webm")
	f, err := os.Create(chunksPath)
	if err != nil {
		return nil, fmt.Errorf("create chunk file: %w", err)
	}
	return &Session{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		dir:        dir,
		chunksPath: chunksPath,
		file:       f,
		active:     true,
	}, nil
}

// AddChunk appends one raw chunk. Chunks arriving after Finalize are ignored.
func (s *Session) AddChunk(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}
	if _, err := s.file.Write(chunk); err != nil {
		return fmt.Errorf("append chunk: %w", err)
	}
	s.chunks++
	s.bytes += int64(len(chunk))
	return nil
}

// Finalize closes the chunk file and compiles it into an MP4. It returns the
// compiled file path, or "" when there was nothing to compile. Calling it
// again is a no-op.
func (s *Session) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return s.compiled, nil
	}
	s.active = false
	if err := s.file.Close(); err != nil {
		log.Warn("close chunk file", "session_id", s.ID, "error", err)
	}

	if s.chunks == 0 {
		log.Info("no chunks to compile", "session_id", s.ID)
		return "", nil
	}

	log.Info("compiling recording", "session_id", s.ID, "chunks", s.chunks, "bytes", s.bytes)

	output := filepath.Join(s.dir, s.ID+".mp4")
	if err := compile(s.chunksPath, output); err != nil {
		return "", fmt.Errorf("compile recording: %w", err)
	}
	s.compiled = output
	log.Info("compiled recording", "session_id", s.ID, "file", output)
	return output, nil
}

// RecordingPath returns the compiled MP4 path, or "" if not compiled.
func (s *Session) RecordingPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compiled
}

// Info returns a snapshot of the session state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Chunks:    s.chunks,
		Bytes:     s.bytes,
		Active:    s.active,
		Recording: s.compiled,
	}
}

func (s *Session) cleanup() {
	s.mu.Lock()
	if s.active {
		s.active = false
		s.file.Close()
	}
	s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		log.Warn("cleanup session files", "session_id", s.ID, "error", err)
	}
}

// compile muxes the appended WebM chunks into a seekable MP4.
func compile(input, output string) error {
	ffmpeg := os.Getenv("FFMPEG_BINARY")
	if ffmpeg == "" {
		p, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		ffmpeg = p
	}

	cmd := exec.Command(ffmpeg,
		"-i", input,
		"-vcodec", "libx264",
		"-movflags", "+faststart",
		"-loglevel", "error",
		"-y",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w (%s)", err, stderr.String())
	}
	return nil
}
