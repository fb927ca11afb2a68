package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "http://localhost:8000/slides/")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	data := []byte{0xff, 0xd8, 0xff, 0xe0}
	res, err := l.Store(data, "kf_abc.jpg", "sess-1")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if res.URL != "http://localhost:8000/slides/sess-1/kf_abc.jpg" {
		t.Errorf("url: got %q", res.URL)
	}

	want := filepath.Join(dir, "sess-1", "kf_abc.jpg")
	if res.Key != want {
		t.Errorf("key: got %q, want %q", res.Key, want)
	}

	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read stored image: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("stored bytes differ: got %v, want %v", got, data)
	}
}

func TestLocalStoreNoSession(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "http://host/s")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	res, err := l.Store([]byte{0x01}, "kf_x.jpg", "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.URL != "http://host/s/kf_x.jpg" {
		t.Errorf("url: got %q", res.URL)
	}
}

func TestLocalDefaultBaseURL(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	res, err := l.Store([]byte{0x01}, "kf_y.jpg", "sess")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	abs, _ := filepath.Abs(dir)
	want := "file://" + filepath.ToSlash(abs) + "/sess/kf_y.jpg"
	if res.URL != want {
		t.Errorf("url: got %q, want %q", res.URL, want)
	}
}
