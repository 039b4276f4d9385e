package extractor

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"pdfrag/internal/domain"
)

// PDFExtractor reads page text with ledongthuc/pdf and embedded raster
// images with pdfcpu. The document file is opened once per Extract call and
// closed before it returns.
type PDFExtractor struct {
	images imageSource
}

var _ domain.Extractor = (*PDFExtractor)(nil)

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{images: newPDFCPUSource()}
}

// Extract returns every page of the document in order. Images that cannot be
// decoded are logged, recorded in Extraction.Skipped and left out.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (*domain.Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.DocumentOpenError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &domain.DocumentOpenError{Path: path, Err: err}
	}
	if info.IsDir() {
		return nil, &domain.DocumentOpenError{Path: path, Err: errors.New("is a directory")}
	}

	texts, err := readPageTexts(f, info.Size())
	if err != nil {
		return nil, &domain.DocumentOpenError{Path: path, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := logrus.WithField("document", path)
	raws, err := e.images.extract(f)
	if err != nil {
		log.WithError(err).Warn("cannot read document images, continuing with text only")
		raws = nil
	}

	out := &domain.Extraction{Pages: make([]domain.Page, len(texts))}
	for i, text := range texts {
		out.Pages[i] = domain.Page{Index: i, Text: text}
	}
	for page, pageRaws := range groupByPage(raws, len(texts)) {
		imgs, skipped := decodePageImages(page, pageRaws)
		out.Pages[page].Images = imgs
		for _, s := range skipped {
			log.WithFields(logrus.Fields{"page": s.Page, "image_index": s.Index}).WithError(s.Err).Warn("skipping undecodable image")
		}
		out.Skipped = append(out.Skipped, skipped...)
	}

	log.WithFields(logrus.Fields{
		"pages":          len(out.Pages),
		"images":         out.ImageCount(),
		"skipped_images": len(out.Skipped),
	}).Debug("document extracted")
	return out, nil
}
