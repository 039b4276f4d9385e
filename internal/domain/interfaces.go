package domain

import (
	"context"
	"fmt"
	"image"
	"iter"
)

// Kind tells text records apart from image records.
type Kind int

const (
	KindText Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ContentRecord is the unit stored in and retrieved from an index.
// For image records Content holds an opaque reference and ImageID keys the
// session's ImageStore.
type ContentRecord struct {
	Content string
	Kind    Kind
	Page    int
	ImageID string
}

// ImageID returns the stable key of the index-th image on a zero-based page.
func ImageID(page, index int) string {
	return fmt.Sprintf("page_%d_img_%d", page, index)
}

// ImageReference is the Content of an image record.
func ImageReference(imageID string) string {
	return "[Image: " + imageID + "]"
}

// Page is the extracted content of a single PDF page.
type Page struct {
	Index  int
	Text   string
	Images []PageImage
}

// PageImage is one decoded raster image; Index is its position among all
// images of the page, including ones that failed to decode.
type PageImage struct {
	Index int
	Image image.Image
}

// Extraction is the result of reading one document.
type Extraction struct {
	Pages   []Page
	Skipped []*ImageDecodeError
}

// ImageCount returns how many images decoded successfully.
func (e *Extraction) ImageCount() int {
	n := 0
	for _, p := range e.Pages {
		n += len(p.Images)
	}
	return n
}

// Chunk is a bounded segment of one page's text. Start and End are rune
// offsets into the page text.
type Chunk struct {
	Page  int
	Text  string
	Start int
	End   int
}

// SearchResult is a retrieved record with its similarity score.
type SearchResult struct {
	Record ContentRecord
	Score  float64
}

// Extractor reads per-page text and images from a document.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

// Chunker splits page text into overlapping chunks.
type Chunker interface {
	Chunks(text string, page int) iter.Seq[Chunk]
}

// Embedder maps text and images into one unit-normalized vector space.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedImage(ctx context.Context, img image.Image) ([]float64, error)
}

// Index is an immutable similarity index over one session's records.
type Index interface {
	Search(ctx context.Context, vector []float64, k int) ([]SearchResult, error)
	Len() int
	Close() error
}

// IndexBuilder constructs an Index from aligned records and vectors.
type IndexBuilder interface {
	Build(ctx context.Context, records []ContentRecord, vectors [][]float64) (Index, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
