package chunker

import (
	"fmt"
	"iter"
	"slices"
	"unicode"

	"pdfrag/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// separator levels, most preferred first; a hard cut is the last resort
var separators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! "},
	{" ", "\t"},
}

// RecursiveChunker splits page text into chunks of at most size runes,
// consecutive chunks sharing up to overlap runes.
type RecursiveChunker struct {
	size    int
	overlap int
}

func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &RecursiveChunker{size: size, overlap: overlap}, nil
}

// Chunks returns a lazy sequence of the chunks of text. Ranging over the
// result again recomputes it from the start.
func (c *RecursiveChunker) Chunks(text string, page int) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(text)
		n := len(runes)
		pos := 0
		for pos < n {
			end := min(pos+c.size, n)
			cut := end
			if end < n {
				cut = c.cutPoint(runes, pos, end)
			}
			start, stop := trimSpan(runes, pos, cut)
			if start < stop {
				ch := domain.Chunk{Page: page, Text: string(runes[start:stop]), Start: start, End: stop}
				if !yield(ch) {
					return
				}
			}
			if cut >= n {
				return
			}
			pos = c.nextStart(runes, pos, cut)
		}
	}
}

// Split collects Chunks into a slice.
func (c *RecursiveChunker) Split(text string, page int) []domain.Chunk {
	return slices.Collect(c.Chunks(text, page))
}

// cutPoint picks the end of the chunk starting at pos. The cut always lies
// beyond pos+overlap so the next chunk starts strictly after pos.
func (c *RecursiveChunker) cutPoint(runes []rune, pos, end int) int {
	lo := pos + c.overlap + 1
	if lo >= end {
		return end
	}
	window := runes[lo:end]
	for _, level := range separators {
		best := -1
		for _, sep := range level {
			if i := lastIndex(window, []rune(sep)); i >= 0 {
				if e := i + len([]rune(sep)); e > best {
					best = e
				}
			}
		}
		if best > 0 {
			return lo + best
		}
	}
	return end
}

// nextStart backs off overlap runes from cut and then moves forward to the
// next word start, so overlapping chunks do not begin mid-word.
func (c *RecursiveChunker) nextStart(runes []rune, pos, cut int) int {
	next := cut - c.overlap
	if next <= pos {
		return cut
	}
	if next > 0 && !unicode.IsSpace(runes[next-1]) {
		for j := next; j < cut; j++ {
			if unicode.IsSpace(runes[j]) {
				return j + 1
			}
		}
	}
	return next
}

func trimSpan(runes []rune, start, stop int) (int, int) {
	for start < stop && unicode.IsSpace(runes[start]) {
		start++
	}
	for stop > start && unicode.IsSpace(runes[stop-1]) {
		stop--
	}
	return start, stop
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
