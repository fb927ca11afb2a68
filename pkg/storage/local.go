package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local stores slide images under a base directory, one subdirectory per
// session.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates the base directory if needed. An empty baseURL defaults to
// a file:// URL for the resolved directory.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	if baseURL == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve storage directory: %w", err)
		}
		baseURL = "file://" + filepath.ToSlash(abs)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes the image and returns its URL and on-disk key.
func (l *Local) Store(data []byte, key, sessionID string) (Result, error) {
	rel := key
	if sessionID != "" {
		rel = path.Join(sessionID, key)
	}

	dest := filepath.Join(l.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write slide image: %w", err)
	}

	return Result{URL: l.baseURL + "/" + rel, Key: dest}, nil
}
