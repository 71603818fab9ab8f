package chat

import (
	"strings"
	"testing"
)

func collect(units *[]Sentence) func(Sentence) {
	return func(u Sentence) { *units = append(*units, u) }
}

func TestSegmenter_SplitsOnTerminalPunctuation(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	seg.Feed("Hello there! How are you? I'm fine")
	seg.Finalize()

	want := []string{"Hello there!", "How are you?", "I'm fine"}
	if len(units) != len(want) {
		t.Fatalf("got %d units, want %d: %+v", len(units), len(want), units)
	}
	for i, w := range want {
		if units[i].Text != w {
			t.Errorf("unit %d: got %q, want %q", i, units[i].Text, w)
		}
		if units[i].Index != i {
			t.Errorf("unit %d: got index %d", i, units[i].Index)
		}
	}
}

func TestSegmenter_SplitsOnNewlines(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	seg.Feed("first line\n\nsecond line")
	seg.Finalize()

	if len(units) != 2 {
		t.Fatalf("got %d units, want 2: %+v", len(units), units)
	}
	if units[0].Text != "first line" || units[1].Text != "second line" {
		t.Errorf("unexpected texts: %+v", units)
	}
}

func TestSegmenter_EmitsAcrossDeltaBoundaries(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	// Split mid-sentence: no emission until the boundary arrives.
	seg.Feed("One two")
	if len(units) != 0 {
		t.Fatalf("emitted %d units before any boundary", len(units))
	}
	seg.Feed(" three. Four")
	if len(units) != 1 {
		t.Fatalf("got %d units after boundary, want 1", len(units))
	}
	if units[0].Text != "One two three." {
		t.Errorf("got %q", units[0].Text)
	}
	seg.Feed(" five")
	seg.Finalize()
	if len(units) != 2 {
		t.Fatalf("got %d units after finalize, want 2", len(units))
	}
	if units[1].Text != "Four five" {
		t.Errorf("got %q", units[1].Text)
	}
}

func TestSegmenter_ExactlyOneLastUnit(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	seg.Feed("Done. Almost. And the tail")
	seg.Finalize()

	lasts := 0
	for _, u := range units {
		if u.Last {
			lasts++
		}
	}
	if lasts != 1 {
		t.Errorf("got %d Last units, want 1: %+v", lasts, units)
	}
	if !units[len(units)-1].Last {
		t.Errorf("final unit not marked Last: %+v", units)
	}
}

func TestSegmenter_ContiguousIndices(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	for _, d := range []string{"A. ", "B! C?", " D\n", "\nE. tail"} {
		seg.Feed(d)
	}
	seg.Finalize()

	for i, u := range units {
		if u.Index != i {
			t.Fatalf("unit %d has index %d: %+v", i, u.Index, units)
		}
	}
}

func TestSegmenter_ReconstructsFullText(t *testing.T) {
	full := "It was a dark night. Rain fell!\nNobody moved. Then a knock came"
	var units []Sentence

	// Feed one byte at a time; concatenating unit texts must recover every
	// word of the input regardless of delta sizing.
	seg := NewSentenceSegmenter(collect(&units))
	for i := 0; i < len(full); i++ {
		seg.Feed(full[i : i+1])
	}
	seg.Finalize()

	var b strings.Builder
	for _, u := range units {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(u.Text)
	}
	got := strings.Fields(b.String())
	want := strings.Fields(full)
	if len(got) != len(want) {
		t.Fatalf("word count mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if strings.Trim(got[i], ".!?") != strings.Trim(want[i], ".!?") {
			t.Errorf("word %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSegmenter_WhitespaceOnlySpansDropped(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	seg.Feed("Hi.\n\n\n  \nBye.")
	seg.Finalize()

	for _, u := range units {
		if strings.TrimSpace(u.Text) == "" {
			t.Errorf("emitted whitespace-only unit: %+v", units)
		}
	}
}

func TestSegmenter_EmptyStream(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))
	seg.Finalize()
	if len(units) != 0 {
		t.Errorf("empty stream emitted %d units", len(units))
	}
}

func TestSegmenter_PunctuationRunsStayTogether(t *testing.T) {
	var units []Sentence
	seg := NewSentenceSegmenter(collect(&units))

	seg.Feed("Really?! Yes... truly")
	seg.Finalize()

	if len(units) != 3 {
		t.Fatalf("got %d units: %+v", len(units), units)
	}
	if units[0].Text != "Really?!" {
		t.Errorf("got %q, want %q", units[0].Text, "Really?!")
	}
	if units[1].Text != "Yes..." {
		t.Errorf("got %q, want %q", units[1].Text, "Yes...")
	}
}

func TestSegmenter_BufferedText(t *testing.T) {
	seg := NewSentenceSegmenter(func(Sentence) {})
	seg.Feed("Complete. partial tail")
	if got := seg.BufferedText(); got != "partial tail" {
		t.Errorf("BufferedText() = %q", got)
	}
}
