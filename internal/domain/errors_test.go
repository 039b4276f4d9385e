package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")

	open := fmt.Errorf("build: %w", &DocumentOpenError{Path: "a.pdf", Err: cause})
	assert.ErrorIs(t, open, ErrDocumentOpen)
	assert.ErrorIs(t, open, cause)

	var de *DocumentOpenError
	require.ErrorAs(t, open, &de)
	assert.Equal(t, "a.pdf", de.Path)

	emb := &EmbeddingError{Kind: KindImage, Page: 2, Index: 1, Err: ErrZeroNorm}
	assert.ErrorIs(t, emb, ErrEmbedding)
	assert.ErrorIs(t, emb, ErrZeroNorm)
	assert.Contains(t, emb.Error(), "image 1 on page 2")

	query := &EmbeddingError{Kind: KindText, Page: -1, Err: cause}
	assert.Contains(t, query.Error(), "text query")

	gen := &GenerationError{Provider: "gemini", Err: cause}
	assert.ErrorIs(t, gen, ErrGeneration)
	assert.ErrorIs(t, gen, cause)
}

func TestIndexBuildErrorNothingToIndex(t *testing.T) {
	empty := &IndexBuildError{Reason: "no records"}
	assert.ErrorIs(t, empty, ErrIndexBuild)
	assert.ErrorIs(t, empty, ErrNothingToIndex)

	mismatch := &IndexBuildError{Records: 2, Vectors: 1, Reason: "count mismatch"}
	assert.ErrorIs(t, mismatch, ErrIndexBuild)
	assert.NotErrorIs(t, mismatch, ErrNothingToIndex)
}

func TestImageIDAndStore(t *testing.T) {
	assert.Equal(t, "page_2_img_0", ImageID(2, 0))
	assert.Equal(t, "[Image: page_2_img_0]", ImageReference("page_2_img_0"))

	s := NewImageStore()
	s.Put("page_1_img_1", "b")
	s.Put("page_0_img_0", "a")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"page_0_img_0", "page_1_img_1"}, s.IDs())

	s.Delete("page_0_img_0")
	_, ok := s.Get("page_0_img_0")
	assert.False(t, ok)
	data, ok := s.Get("page_1_img_1")
	assert.True(t, ok)
	assert.Equal(t, "b", data)
}

func TestPartDataURL(t *testing.T) {
	p := Part{Type: PartImage, Data: "aGk=", MIMEType: "image/png"}
	assert.Equal(t, "data:image/png;base64,aGk=", p.DataURL())
	raw, err := p.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), raw)
}
