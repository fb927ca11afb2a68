package stream

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakePingWriter struct {
	fail  bool
	pings atomic.Int32
}

func (f *fakePingWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.pings.Add(1)
	if f.fail {
		return errors.New("write failed")
	}
	return nil
}

func TestKeepAlivePingsUntilStopped(t *testing.T) {
	w := &fakePingWriter{}
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		keepAlive(w, 2*time.Millisecond, stop)
		close(done)
	}()

	deadline := time.After(time.Second)
	for w.pings.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("got %d pings, want at least 3", w.pings.Load())
		case <-time.After(time.Millisecond):
		}
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not stop after stop closed")
	}
}

func TestKeepAliveExitsOnWriteFailure(t *testing.T) {
	w := &fakePingWriter{fail: true}
	stop := make(chan struct{})
	defer close(stop)
	done := make(chan struct{})

	go func() {
		keepAlive(w, 2*time.Millisecond, stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not exit after a failed ping")
	}
	if got := w.pings.Load(); got != 1 {
		t.Errorf("pings attempted: got %d, want 1", got)
	}
}
