// Package chunker splits extracted text into overlapping character segments.
package chunker

import "strings"

// separators is the split preference order: paragraph, line, sentence, space.
// When none is found in the window the chunk is hard-cut at the size limit.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter produces overlapping chunks of roughly chunkSize characters.
// Chunks are exact substrings of the input, so the overlapping region of two
// adjacent chunks matches the source text exactly and concatenating chunks
// minus their overlaps reproduces the input.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter creates a splitter with the given size and overlap (in runes).
// An overlap >= size is clamped to size-1 so that every step makes progress.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1200
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split returns the chunks of text. Whitespace-only pieces are dropped; a
// whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + s.chunkSize
		if end >= len(runes) {
			appendNonBlank(&chunks, string(runes[start:]))
			break
		}
		cut := s.cutPoint(runes, start, end)
		appendNonBlank(&chunks, string(runes[start:cut]))
		next := cut - s.chunkOverlap
		if next <= start {
			// Chunk shorter than the overlap; advance without overlapping.
			next = cut
		}
		start = next
	}
	return chunks
}

// cutPoint picks where to end the chunk starting at start, preferring the last
// paragraph break in the window, then line break, sentence end, or space. The
// cut lands just after the separator. Falls back to a hard cut at end.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	window := string(runes[start:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + len([]rune(window[:i+len(sep)]))
		}
	}
	return end
}

func appendNonBlank(chunks *[]string, piece string) {
	if strings.TrimSpace(piece) != "" {
		*chunks = append(*chunks, piece)
	}
}

// ChunkSize returns the configured target chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }
