package chat

import "strings"

// Sentence is one finalized unit of reply text. Indices are contiguous from
// 0 within a turn; Last marks the turn's final unit.
type Sentence struct {
	Index int
	Text  string
	Last  bool
}

// SentenceSegmenter turns append-only text deltas into ordered sentence
// units, emitting each as soon as it can be delimited. A boundary is a run
// of terminal punctuation (. ! ?) followed by optional whitespace, or a run
// of newlines. The rule lives in boundaryEnd and is a tunable policy.
type SentenceSegmenter struct {
	buf     strings.Builder
	emitted int // length of buf already segmented
	next    int // next ordinal index
	onUnit  func(Sentence)
}

// NewSentenceSegmenter creates a segmenter that calls onUnit for every
// delimited sentence.
func NewSentenceSegmenter(onUnit func(Sentence)) *SentenceSegmenter {
	return &SentenceSegmenter{onUnit: onUnit}
}

// Feed appends a text delta and emits any newly completed sentences.
func (s *SentenceSegmenter) Feed(delta string) {
	s.buf.WriteString(delta)
	s.drain()
}

// Finalize signals the stream is complete. Any non-empty trailing text is
// emitted as the turn's final unit.
func (s *SentenceSegmenter) Finalize() {
	s.drain()
	text := s.buf.String()
	if s.emitted >= len(text) {
		return
	}
	if rem := strings.TrimSpace(text[s.emitted:]); rem != "" {
		s.emit(rem, true)
	}
	s.emitted = len(text)
}

// BufferedText returns accumulated text not yet emitted as a unit.
func (s *SentenceSegmenter) BufferedText() string {
	return s.buf.String()[s.emitted:]
}

// drain scans the unemitted suffix only, so already-emitted text is never
// re-emitted.
func (s *SentenceSegmenter) drain() {
	text := s.buf.String()
	for {
		rest := text[s.emitted:]
		end := boundaryEnd(rest)
		if end < 0 {
			return
		}
		if span := strings.TrimSpace(rest[:end]); span != "" {
			s.emit(span, false)
		}
		s.emitted += end
	}
}

func (s *SentenceSegmenter) emit(text string, last bool) {
	s.onUnit(Sentence{Index: s.next, Text: text, Last: last})
	s.next++
}

// boundaryEnd returns the length of the prefix of text ending at the first
// sentence boundary, or -1 if no boundary is present yet.
func boundaryEnd(text string) int {
	for i := 0; i < len(text); i++ {
		switch {
		case isTerminal(text[i]):
			j := i + 1
			for j < len(text) && isTerminal(text[j]) {
				j++
			}
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			return j
		case text[i] == '\n':
			j := i + 1
			for j < len(text) && text[j] == '\n' {
				j++
			}
			return j
		}
	}
	return -1
}

func isTerminal(ch byte) bool {
	return ch == '.' || ch == '!' || ch == '?'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}
