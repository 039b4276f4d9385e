package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"pdfrag/internal/assembler"
	"pdfrag/internal/domain"
	"pdfrag/internal/extractor"
)

// Embedder is the embedding capability the pipeline needs; it attributes
// failures to a page and item. *embedding.Shared implements it.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
	EmbedChunk(ctx context.Context, text string, page, index int) ([]float64, error)
	EmbedPageImage(ctx context.Context, img image.Image, page, index int) ([]float64, error)
}

// Options tunes the pipeline.
type Options struct {
	TopK             int
	SummarySentences int
}

// RAGService indexes documents and answers questions against built indexes.
// It holds no per-document state; everything a document needs lives in the
// Built value returned by Index.
type RAGService struct {
	extractor  domain.Extractor
	chunker    domain.Chunker
	embedder   Embedder
	storage    domain.IndexBuilder
	generator  domain.Generator
	summarizer domain.Summarizer
	opts       Options
}

func NewRAGService(ex domain.Extractor, ch domain.Chunker, emb Embedder, st domain.IndexBuilder, gen domain.Generator, sum domain.Summarizer, opts Options) *RAGService {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	return &RAGService{extractor: ex, chunker: ch, embedder: emb, storage: st, generator: gen, summarizer: sum, opts: opts}
}

// Stats counts what went into an index.
type Stats struct {
	Pages         int `json:"pages"`
	TextChunks    int `json:"text_chunks"`
	Images        int `json:"images"`
	SkippedImages int `json:"skipped_images"`
	SkippedChunks int `json:"skipped_chunks"`
}

// Built is one document's index together with its image store.
type Built struct {
	Index    domain.Index
	Images   *domain.ImageStore
	Stats    Stats
	Overview string
}

// Close releases the index.
func (b *Built) Close() error {
	if b == nil || b.Index == nil {
		return nil
	}
	return b.Index.Close()
}

// Answer is the result of one question.
type Answer struct {
	Question string
	Text     string
	Sources  []domain.SearchResult
}

// item is one embeddable piece of the document in index order: for every
// page its text chunks, then its images.
type item struct {
	kind   domain.Kind
	page   int
	index  int
	text   string
	img    image.Image
	vector []float64
	data   string
}

// Index extracts, chunks and embeds the document at path and builds its
// index. Items that fail to embed are skipped and counted; a document with
// nothing left to index fails with an IndexBuildError.
func (s *RAGService) Index(ctx context.Context, path string) (*Built, error) {
	log := logrus.WithField("document", path)
	extraction, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}

	var items []*item
	var fullText strings.Builder
	for _, p := range extraction.Pages {
		n := 0
		for ch := range s.chunker.Chunks(p.Text, p.Index) {
			items = append(items, &item{kind: domain.KindText, page: p.Index, index: n, text: ch.Text})
			n++
		}
		for _, img := range p.Images {
			items = append(items, &item{kind: domain.KindImage, page: p.Index, index: img.Index, img: img.Image})
		}
		fullText.WriteString(p.Text)
		fullText.WriteString("\n")
	}

	stats := Stats{Pages: len(extraction.Pages), SkippedImages: len(extraction.Skipped)}
	skippedText, skippedImages, err := s.embedItems(ctx, log, items)
	if err != nil {
		return nil, err
	}
	stats.SkippedChunks = skippedText
	stats.SkippedImages += skippedImages

	var (
		records []domain.ContentRecord
		vectors [][]float64
		images  = domain.NewImageStore()
	)
	for _, it := range items {
		if it.vector == nil {
			continue
		}
		switch it.kind {
		case domain.KindText:
			records = append(records, domain.ContentRecord{Content: it.text, Kind: domain.KindText, Page: it.page})
			stats.TextChunks++
		case domain.KindImage:
			id := domain.ImageID(it.page, it.index)
			images.Put(id, it.data)
			records = append(records, domain.ContentRecord{Content: domain.ImageReference(id), Kind: domain.KindImage, Page: it.page, ImageID: id})
			stats.Images++
		}
		vectors = append(vectors, it.vector)
	}

	idx, err := s.storage.Build(ctx, records, vectors)
	if err != nil {
		return nil, err
	}

	overview := ""
	if s.summarizer != nil {
		if overview, err = s.summarizer.Summarize(fullText.String(), s.opts.SummarySentences); err != nil {
			log.WithError(err).Warn("cannot summarize document")
		}
	}

	log.WithFields(logrus.Fields{
		"pages":          stats.Pages,
		"text_chunks":    stats.TextChunks,
		"images":         stats.Images,
		"skipped_images": stats.SkippedImages,
		"skipped_chunks": stats.SkippedChunks,
	}).Info("document indexed")
	return &Built{Index: idx, Images: images, Stats: stats, Overview: overview}, nil
}

// embedItems embeds text and images concurrently, filling item vectors.
// Per-item failures are logged and counted; only cancellation aborts.
func (s *RAGService) embedItems(ctx context.Context, log logrus.FieldLogger, items []*item) (skippedText, skippedImages int, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, it := range items {
			if it.kind != domain.KindText {
				continue
			}
			v, err := s.embedder.EmbedChunk(gctx, it.text, it.page, it.index)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.WithFields(logrus.Fields{"page": it.page, "chunk_index": it.index}).WithError(err).Warn("skipping chunk that failed to embed")
				skippedText++
				continue
			}
			it.vector = v
		}
		return nil
	})
	g.Go(func() error {
		for _, it := range items {
			if it.kind != domain.KindImage {
				continue
			}
			data, err := extractor.EncodePNG(it.img)
			if err == nil {
				it.vector, err = s.embedder.EmbedPageImage(gctx, it.img, it.page, it.index)
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.WithFields(logrus.Fields{"page": it.page, "image_index": it.index}).WithError(err).Warn("skipping image that failed to embed")
				it.vector = nil
				skippedImages++
				continue
			}
			it.data = data
		}
		return nil
	})
	err = g.Wait()
	return skippedText, skippedImages, err
}

// Retrieve embeds the question and returns the top k records. k == 0 uses
// the configured default; negative k is rejected by the index. A question
// with no searchable content fails with ErrEmptyQuestion.
func (s *RAGService) Retrieve(ctx context.Context, b *Built, question string, k int) ([]domain.SearchResult, error) {
	if b == nil || b.Index == nil {
		return nil, errors.New("no document indexed")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if k == 0 {
		k = s.opts.TopK
	}
	qv, err := s.embedder.EmbedText(ctx, question)
	if err != nil {
		if errors.Is(err, domain.ErrZeroNorm) {
			// nothing searchable left, e.g. only punctuation
			return nil, fmt.Errorf("%w: %w", domain.ErrEmptyQuestion, err)
		}
		return nil, err
	}
	return b.Index.Search(ctx, qv, k)
}

// Answer retrieves context for the question, assembles the prompt and asks
// the generator. Generation failures are returned unchanged.
func (s *RAGService) Answer(ctx context.Context, b *Built, question string, k int) (*Answer, error) {
	if s.generator == nil {
		return nil, errors.New("no generator configured")
	}
	results, err := s.Retrieve(ctx, b, question, k)
	if err != nil {
		return nil, err
	}
	assembler.LogSummary(logrus.StandardLogger(), question, results)

	msg := assembler.Assemble(question, assembler.Records(results), b.Images)
	text, err := s.generator.Generate(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	return &Answer{Question: question, Text: text, Sources: results}, nil
}

// TopK returns the default retrieval count.
func (s *RAGService) TopK() int { return s.opts.TopK }
