package hashing

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestEmbedOutputsAreUnitVectors(t *testing.T) {
	e := NewEmbedder(256)
	ctx := context.Background()

	for _, text := range []string{"Revenue grew in the third quarter", "the", "Ärger über Öl 2024"} {
		v, err := e.EmbedText(ctx, text)
		require.NoError(t, err, text)
		assert.Len(t, v, 256)
		assert.InDelta(t, 1.0, embedding.Norm(v), 1e-9)
	}

	v, err := e.EmbedImage(ctx, gradient(40, 30))
	require.NoError(t, err)
	assert.Len(t, v, 256)
	assert.InDelta(t, 1.0, embedding.Norm(v), 1e-9)

	v, err = e.EmbedImage(ctx, image.NewGray(image.Rect(0, 0, 3, 3)))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, embedding.Norm(v), 1e-9)
}

func TestEmbedIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := NewEmbedder(0).EmbedText(ctx, "quarterly chart of sales")
	require.NoError(t, err)
	b, err := NewEmbedder(0).EmbedText(ctx, "quarterly chart of sales")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimension)

	img := gradient(16, 16)
	ia, err := NewEmbedder(0).EmbedImage(ctx, img)
	require.NoError(t, err)
	ib, err := NewEmbedder(0).EmbedImage(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, ia, ib)
}

func TestEmbedTextFoldsPlurals(t *testing.T) {
	e := NewEmbedder(128)
	ctx := context.Background()
	a, err := e.EmbedText(ctx, "charts")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "chart")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dot(a, b), 1e-9)
}

func TestEmbedTextSimilarityOrdering(t *testing.T) {
	e := NewEmbedder(1024)
	ctx := context.Background()
	q, err := e.EmbedText(ctx, "revenue growth")
	require.NoError(t, err)
	same, err := e.EmbedText(ctx, "revenue growth")
	require.NoError(t, err)
	near, err := e.EmbedText(ctx, "revenue growth was strong this year")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, dot(q, same), 1e-9)
	assert.Greater(t, dot(q, same), dot(q, near))
}

func TestEmbedFailsFastOnEmptyInput(t *testing.T) {
	e := NewEmbedder(64)
	_, err := e.EmbedText(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrZeroNorm)
	_, err = e.EmbedText(context.Background(), "!!! ???")
	assert.ErrorIs(t, err, domain.ErrZeroNorm)
	_, err = e.EmbedImage(context.Background(), image.NewRGBA(image.Rectangle{}))
	assert.Error(t, err)
}
