package keyframe

import (
	"bytes"

	"github.com/DGQW1/calhack-backend/internal/log"
)

// ebmlHeader marks the start of a WebM initialization segment. Any fragment
// beginning with it is treated as a stream (re)start.
var ebmlHeader = []byte{0x1A, 0x45, 0xDF, 0xA3}

// DefaultMaxFragments bounds the trailing media window so reconstruction and
// decode cost stay independent of stream length.
const DefaultMaxFragments = 3

// Assembler buffers an init segment plus a bounded trailing window of media
// fragments and reconstructs a decodable prefix of the stream. Downstream
// must dedup frames, since consecutive reconstructions overlap.
type Assembler struct {
	init         []byte
	media        [][]byte
	maxFragments int
	received     int
}

// NewAssembler creates an assembler keeping at most maxFragments media
// fragments; values <= 0 select DefaultMaxFragments.
func NewAssembler(maxFragments int) *Assembler {
	if maxFragments <= 0 {
		maxFragments = DefaultMaxFragments
	}
	return &Assembler{maxFragments: maxFragments}
}

// Add buffers one fragment and returns a self-contained decodable prefix, or
// nil when no init segment has been seen yet. An init segment discards all
// buffered media and is returned alone.
func (a *Assembler) Add(fragment []byte) []byte {
	a.received++

	if len(fragment) >= len(ebmlHeader) && bytes.Equal(fragment[:len(ebmlHeader)], ebmlHeader) {
		a.init = append([]byte(nil), fragment...)
		a.media = a.media[:0]
		log.Info("init segment received", "bytes", len(fragment))
		// Callers get their own copy; the buffered init must stay intact
		// across reconstructions.
		return append([]byte(nil), a.init...)
	}

	if a.init == nil {
		log.Debug("fragment before init segment, skipping", "fragment", a.received)
		return nil
	}

	a.media = append(a.media, append([]byte(nil), fragment...))
	if len(a.media) > a.maxFragments {
		a.media = a.media[1:]
	}

	size := len(a.init)
	for _, m := range a.media {
		size += len(m)
	}
	out := make([]byte, 0, size)
	out = append(out, a.init...)
	for _, m := range a.media {
		out = append(out, m...)
	}
	log.Debug("reconstructed stream prefix", "fragments", len(a.media), "bytes", len(out))
	return out
}

// HasInit reports whether an init segment has been received.
func (a *Assembler) HasInit() bool {
	return a.init != nil
}
