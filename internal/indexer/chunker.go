package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunker splits canonical row text into bounded, overlapping chunks.
// Split points prefer paragraph breaks, then line breaks, then sentence
// ends, then word gaps, with a hard cut as the last resort. No characters
// are dropped: stripping the leading overlap from every chunk after the
// first and concatenating reproduces the input.
type Chunker struct {
	maxSize int
	overlap int
}

// boundary separators in preference order
var separators = []string{"\n\n", "\n", ". ", " "}

func NewChunker(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("overlap must satisfy 0 <= overlap < %d, got %d", maxSize, overlap)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// Split sizes are measured in runes so multi-byte text cannot be cut
// mid-character.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= c.maxSize {
		return []string{text}
	}

	var out []string
	start := 0
	for {
		end := start + c.maxSize
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}

		// A usable boundary must sit past the overlap region or the next
		// chunk would not advance.
		window := string(runes[start:end])
		cut := -1
		for _, sep := range separators {
			if off := boundaryOffset(window, sep); off > c.overlap {
				cut = start + off
				break
			}
		}
		if cut < 0 {
			cut = end
		}

		out = append(out, string(runes[start:cut]))
		start = cut - c.overlap
	}
	return out
}

// boundaryOffset returns the rune offset just after the last occurrence of
// sep in window, or -1 when sep does not occur.
func boundaryOffset(window, sep string) int {
	i := strings.LastIndex(window, sep)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(window[:i]) + utf8.RuneCountInString(sep)
}
