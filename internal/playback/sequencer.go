// Package playback reassembles the server's audio stream on the peer side:
// binary frames accumulate into segments keyed by sentence index, and
// decoded segments are handed to the player strictly in index order no
// matter which decode finishes first.
package playback

import (
	"log/slog"
	"sync"
)

// DecodeFunc decodes one complete audio segment (e.g. MP3 → PCM). It runs
// on its own goroutine per segment.
type DecodeFunc func(data []byte) ([]byte, error)

// PlayFunc receives decoded segments in strict index order. It should hand
// the segment to an output queue rather than block for playback duration.
type PlayFunc func(sentenceIndex int, audio []byte)

// Sequencer accumulates frames between boundary signals and enforces
// in-order playback.
type Sequencer struct {
	decode DecodeFunc
	play   PlayFunc

	mu      sync.Mutex
	current []byte
	ready   map[int][]byte
	done    map[int]bool
	next    int
	gen     int
}

// NewSequencer creates a sequencer. decode may be nil, in which case
// segments pass through undecoded.
func NewSequencer(decode DecodeFunc, play PlayFunc) *Sequencer {
	return &Sequencer{
		decode: decode,
		play:   play,
		ready:  make(map[int][]byte),
		done:   make(map[int]bool),
	}
}

// AddChunk appends one binary frame to the open segment.
func (s *Sequencer) AddChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = append(s.current, chunk...)
}

// EndSegment closes the open segment as sentenceIndex and schedules its
// decode. The segment becomes playable once decoded and all lower indices
// have played.
func (s *Sequencer) EndSegment(sentenceIndex int) {
	s.mu.Lock()
	data := s.current
	s.current = nil
	gen := s.gen
	s.mu.Unlock()

	if s.decode == nil {
		s.finish(gen, sentenceIndex, data, nil)
		return
	}
	go func() {
		decoded, err := s.decode(data)
		s.finish(gen, sentenceIndex, decoded, err)
	}()
}

// Reset drops all buffered and in-flight segments. Used when a new reply
// supersedes the current one.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.current = nil
	s.ready = make(map[int][]byte)
	s.done = make(map[int]bool)
	s.next = 0
}

func (s *Sequencer) finish(gen, index int, audio []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return // stale segment from before a Reset
	}
	if err != nil {
		// A bad segment is skipped so later indices still play.
		slog.Warn("segment decode failed", "sentence_index", index, "error", err)
		s.done[index] = true
	} else {
		s.ready[index] = audio
		s.done[index] = true
	}
	s.flushLocked()
}

// flushLocked plays every contiguous finished segment starting at next.
func (s *Sequencer) flushLocked() {
	for s.done[s.next] {
		if audio, ok := s.ready[s.next]; ok {
			s.play(s.next, audio)
			delete(s.ready, s.next)
		}
		delete(s.done, s.next)
		s.next++
	}
}
