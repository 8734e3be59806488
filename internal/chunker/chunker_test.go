package chunker

import (
	"strings"
	"testing"
)

func TestChunk_ShortInput_SingleSegment(t *testing.T) {
	c := New(DefaultConfig())

	segments := c.Chunk("A short document.")
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Content != "A short document." {
		t.Errorf("unexpected content: %q", segments[0].Content)
	}
	if segments[0].StartOffset != 0 || segments[0].EndOffset != len("A short document.") {
		t.Errorf("unexpected offsets: %d-%d", segments[0].StartOffset, segments[0].EndOffset)
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New(DefaultConfig())
	if segments := c.Chunk(""); len(segments) != 0 {
		t.Errorf("expected no segments for empty input, got %d", len(segments))
	}
}

func TestChunk_Reconstruct_Lossless(t *testing.T) {
	inputs := []string{
		strings.Repeat("The company reports Scope 1 emissions annually. ", 100),
		strings.Repeat("Paragraph one.\n\nParagraph two with more detail.\n\n", 60),
		// One giant sentence forces hard character cuts
		strings.Repeat("abcdefghij", 500),
	}

	for _, cfg := range []Config{
		{MaxChars: 300, Overlap: 50, PreserveSentences: true, PreserveParagraphs: true},
		{MaxChars: 120, Overlap: 0, PreserveSentences: true},
		{MaxChars: 100, Overlap: 30},
	} {
		c := New(cfg)
		for _, input := range inputs {
			segments := c.Chunk(input)
			if len(segments) < 1 {
				t.Fatalf("expected at least one segment")
			}
			if got := Reconstruct(segments); got != input {
				t.Errorf("reconstruction mismatch for config %+v: got %d chars, want %d", cfg, len(got), len(input))
			}
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	input := strings.Repeat("Board oversight of climate matters is disclosed. ", 80)
	c := New(Config{MaxChars: 400, Overlap: 80, PreserveSentences: true})

	first := c.Chunk(input)
	second := c.Chunk(input)

	if len(first) != len(second) {
		t.Fatalf("segment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("segment %d differs between runs", i)
		}
	}
}

func TestChunk_OrderAndOverlap(t *testing.T) {
	input := strings.Repeat("Emissions data is verified by a third party. ", 60)
	c := New(Config{MaxChars: 300, Overlap: 60, PreserveSentences: true})

	segments := c.Chunk(input)
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}

	for i, seg := range segments {
		if seg.Position != i {
			t.Errorf("segment %d has position %d", i, seg.Position)
		}
		if seg.Content != input[seg.StartOffset:seg.EndOffset] {
			t.Errorf("segment %d content does not match its offsets", i)
		}
		if i > 0 {
			if seg.StartOffset >= segments[i-1].EndOffset {
				t.Errorf("segment %d does not overlap its predecessor", i)
			}
			if seg.StartOffset <= segments[i-1].StartOffset {
				t.Errorf("segment %d does not advance", i)
			}
		}
	}
}

func TestChunk_PrefersSentenceBoundary(t *testing.T) {
	input := "First sentence here. Second sentence follows. " + strings.Repeat("x", 400)
	c := New(Config{MaxChars: 60, Overlap: 10, PreserveSentences: true})

	segments := c.Chunk(input)
	if !strings.HasSuffix(segments[0].Content, ". ") {
		t.Errorf("expected first segment to end at a sentence boundary, got %q", segments[0].Content)
	}
}

func TestNormalizeText(t *testing.T) {
	in := "line one\r\nline  two   spaced\n\n\n\nline three\r"
	got := NormalizeText(in)
	want := "line one\nline two spaced\n\nline three"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
