// Package chunker splits extracted document text into overlapping segments,
// the unit of retrieval. Segments are verbatim slices of the input:
// concatenating each segment minus its overlap with the previous one
// reconstructs the input exactly.
package chunker

import "strings"

// Segment is one chunk of text with its offsets into the source.
type Segment struct {
	Content     string
	Position    int
	StartOffset int
	EndOffset   int
}

// Config configures the chunker behavior.
type Config struct {
	// MaxChars is the maximum characters per chunk
	MaxChars int

	// Overlap is the character overlap between consecutive chunks
	Overlap int

	// PreserveSentences tries to break at sentence boundaries
	PreserveSentences bool

	// PreserveParagraphs tries to break at paragraph boundaries
	PreserveParagraphs bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxChars:           1000,
		Overlap:            200,
		PreserveSentences:  true,
		PreserveParagraphs: true,
	}
}

// Chunker splits content into overlapping segments.
type Chunker struct {
	config Config
}

// New creates a chunker with the given config. Overlap is clamped below
// MaxChars so every step advances.
func New(config Config) *Chunker {
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultConfig().MaxChars
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.Overlap >= config.MaxChars {
		config.Overlap = config.MaxChars / 2
	}
	return &Chunker{config: config}
}

// Chunk splits content into ordered, overlapping segments. Output is
// deterministic for identical input and config. Empty input yields no
// segments.
func (c *Chunker) Chunk(content string) []Segment {
	if content == "" {
		return nil
	}

	if len(content) <= c.config.MaxChars {
		return []Segment{{
			Content:     content,
			Position:    0,
			StartOffset: 0,
			EndOffset:   len(content),
		}}
	}

	var segments []Segment
	position := 0
	start := 0

	for start < len(content) {
		end := start + c.config.MaxChars
		if end > len(content) {
			end = len(content)
		}

		// Prefer a paragraph or sentence boundary near the cut; fall back
		// to a hard cut when one sentence exceeds MaxChars.
		if end < len(content) {
			breakPoint := c.findBreakPoint(content, start, end)
			if breakPoint > start {
				end = breakPoint
			}
		}

		segments = append(segments, Segment{
			Content:     content[start:end],
			Position:    position,
			StartOffset: start,
			EndOffset:   end,
		})
		position++

		if end >= len(content) {
			break
		}

		nextStart := end - c.config.Overlap
		if nextStart <= start {
			// Always advance
			nextStart = start + 1
		}
		start = nextStart
	}

	return segments
}

// Reconstruct concatenates segments minus overlaps. For segments produced
// by Chunk over some text, the result equals that text.
func Reconstruct(segments []Segment) string {
	var b strings.Builder
	prevEnd := 0
	for _, seg := range segments {
		skip := prevEnd - seg.StartOffset
		if skip < 0 {
			skip = 0
		}
		if skip < len(seg.Content) {
			b.WriteString(seg.Content[skip:])
		}
		if seg.EndOffset > prevEnd {
			prevEnd = seg.EndOffset
		}
	}
	return b.String()
}

// findBreakPoint finds a good break point for chunking.
func (c *Chunker) findBreakPoint(content string, start, maxEnd int) int {
	searchStart := maxEnd - 100
	if searchStart < start {
		searchStart = start
	}

	searchContent := content[searchStart:maxEnd]

	// Paragraph boundary (double newline)
	if c.config.PreserveParagraphs {
		if idx := strings.LastIndex(searchContent, "\n\n"); idx != -1 {
			return searchStart + idx + 2
		}
	}

	// Sentence boundary
	if c.config.PreserveSentences {
		sentenceEnders := []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}
		bestIdx := -1

		for _, ender := range sentenceEnders {
			if idx := strings.LastIndex(searchContent, ender); idx != -1 {
				endPos := idx + len(ender)
				if endPos > bestIdx {
					bestIdx = endPos
				}
			}
		}

		if bestIdx > 0 {
			return searchStart + bestIdx
		}
	}

	// Word boundary
	if idx := strings.LastIndex(searchContent, " "); idx != -1 {
		return searchStart + idx + 1
	}

	// No good break point found, hard cut
	return maxEnd
}

// NormalizeText normalizes line endings and collapses runs of blank lines
// and spaces. Applied to raw text before chunking; never applied after, so
// offsets stay valid.
func NormalizeText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		for strings.Contains(line, "  ") {
			line = strings.ReplaceAll(line, "  ", " ")
		}
		lines[i] = strings.TrimRight(line, " ")
	}
	content = strings.Join(lines, "\n")

	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(content)
}
