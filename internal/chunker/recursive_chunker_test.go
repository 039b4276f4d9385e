package chunker

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func sampleText() string {
	var b strings.Builder
	for p := 0; p < 6; p++ {
		for s := 0; s < 8; s++ {
			b.WriteString("The quarterly report shows steady growth in region ")
			b.WriteString(strings.Repeat("x", s+1))
			b.WriteString(". ")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// reconstruct stitches chunks back together, dropping the overlapped prefix
// of each chunk and refilling the whitespace gaps from the source.
func reconstruct(t *testing.T, text string, chunks []domain.Chunk) string {
	t.Helper()
	runes := []rune(text)
	var b strings.Builder
	prevEnd := chunks[0].Start
	for _, ch := range chunks {
		if ch.Start > prevEnd {
			gap := string(runes[prevEnd:ch.Start])
			require.Empty(t, strings.TrimSpace(gap), "uncovered non-whitespace text")
			b.WriteString(gap)
		}
		from := max(ch.Start, prevEnd)
		if ch.End > from {
			b.WriteString(string(runes[from:ch.End]))
		}
		prevEnd = max(prevEnd, ch.End)
	}
	return b.String()
}

func TestChunksCoverTextWithinLimit(t *testing.T) {
	c, err := NewRecursiveChunker(200, 40)
	require.NoError(t, err)
	text := sampleText()

	chunks := c.Split(text, 3)
	require.NotEmpty(t, chunks)

	runes := []rune(text)
	for i, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 200, "chunk %d too long", i)
		assert.Equal(t, 3, ch.Page)
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		if i > 0 {
			assert.Greater(t, ch.Start, chunks[i-1].Start, "chunks must advance")
		}
	}
	assert.Equal(t, strings.TrimSpace(text), reconstruct(t, text, chunks))
}

func TestChunksOverlap(t *testing.T) {
	c, err := NewRecursiveChunker(120, 30)
	require.NoError(t, err)
	chunks := c.Split(sampleText(), 0)
	require.Greater(t, len(chunks), 2)
	overlapping := 0
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start < chunks[i-1].End {
			overlapping++
		}
	}
	assert.Positive(t, overlapping)
}

func TestChunksPreferParagraphBreaks(t *testing.T) {
	c, err := NewRecursiveChunker(100, 10)
	require.NoError(t, err)
	para := strings.Repeat("a", 60)
	text := para + "\n\n" + para + " tail words here"

	chunks := c.Split(text, 0)
	require.NotEmpty(t, chunks)
	assert.Equal(t, para, chunks[0].Text)
}

func TestChunksPreferSentenceOverWord(t *testing.T) {
	c, err := NewRecursiveChunker(60, 5)
	require.NoError(t, err)
	text := "Alpha beta gamma delta. Epsilon zeta eta theta iota kappa lambda mu nu xi omicron"

	chunks := c.Split(text, 0)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Alpha beta gamma delta.", chunks[0].Text)
}

func TestChunksHardCutWithoutSeparators(t *testing.T) {
	c, err := NewRecursiveChunker(50, 10)
	require.NoError(t, err)
	text := strings.Repeat("z", 180)

	chunks := c.Split(text, 1)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Text), 50)
	}
	assert.Equal(t, 50, len(chunks[0].Text))
	assert.Equal(t, text, reconstruct(t, text, chunks))
}

func TestChunksWhitespaceOnly(t *testing.T) {
	c, err := NewRecursiveChunker(0, 0)
	require.NoError(t, err)
	assert.Empty(t, c.Split("", 0))
	assert.Empty(t, c.Split(" \n\t\n  ", 0))
}

func TestChunksShortTextSingleChunk(t *testing.T) {
	c, err := NewRecursiveChunker(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	text := strings.Repeat("Revenue grew. ", 28) // 392 runes
	chunks := c.Split(text, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(text), chunks[0].Text)
}

func TestChunksRestartableAndLazy(t *testing.T) {
	c, err := NewRecursiveChunker(80, 20)
	require.NoError(t, err)
	seq := c.Chunks(sampleText(), 0)

	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, first, second)

	taken := 0
	for range seq {
		taken++
		if taken == 2 {
			break
		}
	}
	assert.Equal(t, 2, taken)
}

func TestChunksUnicode(t *testing.T) {
	c, err := NewRecursiveChunker(30, 5)
	require.NoError(t, err)
	text := strings.Repeat("ünïcødé wörds ", 10)
	chunks := c.Split(text, 0)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch.Text)), 30)
		assert.False(t, unicode.IsSpace([]rune(ch.Text)[0]))
	}
	assert.Equal(t, strings.TrimSpace(text), reconstruct(t, text, chunks))
}

func TestNewRecursiveChunkerRejectsOverlap(t *testing.T) {
	_, err := NewRecursiveChunker(100, 100)
	assert.Error(t, err)
	_, err = NewRecursiveChunker(100, 150)
	assert.Error(t, err)
}
