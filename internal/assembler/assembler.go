// Package assembler turns ranked retrieval results into the mixed
// text-and-image message sent to a generation model.
package assembler

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"pdfrag/internal/domain"
)

const (
	ImageMIMEType = "image/png"

	closingInstruction = "\n\nPlease answer the question based on the provided text and images."
	previewRunes       = 100
)

// ImageLookup resolves image IDs to base64 PNG data.
type ImageLookup interface {
	Get(id string) (string, bool)
}

// Assemble builds the message for query from records in retrieval order:
// the question, all text excerpts tagged with their page, each resolvable
// image preceded by a page label, then the closing instruction. Image
// records missing from images are dropped.
func Assemble(query string, records []domain.ContentRecord, images ImageLookup) domain.Message {
	parts := []domain.Part{{Type: domain.PartText, Text: fmt.Sprintf("Question: %s\n\nContext:\n", query)}}

	var excerpts []string
	for _, r := range records {
		if r.Kind == domain.KindText {
			excerpts = append(excerpts, fmt.Sprintf("[Page %d]: %s", r.Page, r.Content))
		}
	}
	if len(excerpts) > 0 {
		parts = append(parts, domain.Part{Type: domain.PartText, Text: "Text excerpts:\n" + strings.Join(excerpts, "\n\n") + "\n"})
	}

	for _, r := range records {
		if r.Kind != domain.KindImage {
			continue
		}
		data, ok := "", false
		if images != nil {
			data, ok = images.Get(r.ImageID)
		}
		if !ok {
			logrus.WithField("image_id", r.ImageID).Debug("image not in store, leaving it out")
			continue
		}
		parts = append(parts,
			domain.Part{Type: domain.PartText, Text: fmt.Sprintf("\n[Image from page %d]:\n", r.Page)},
			domain.Part{Type: domain.PartImage, Data: data, MIMEType: ImageMIMEType},
		)
	}

	parts = append(parts, domain.Part{Type: domain.PartText, Text: closingInstruction})
	return domain.Message{Parts: parts}
}

// Records extracts the records of results, keeping their order.
func Records(results []domain.SearchResult) []domain.ContentRecord {
	out := make([]domain.ContentRecord, len(results))
	for i, r := range results {
		out[i] = r.Record
	}
	return out
}

// Summarize describes each retrieved record on one line.
func Summarize(results []domain.SearchResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		switch r.Record.Kind {
		case domain.KindImage:
			lines = append(lines, fmt.Sprintf("Image from page %d", r.Record.Page))
		default:
			lines = append(lines, fmt.Sprintf("Text from page %d: %s", r.Record.Page, Preview(r.Record.Content, previewRunes)))
		}
	}
	return lines
}

// Preview shortens s to n runes, marking the cut with an ellipsis.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// LogSummary logs the retrieved context of one query.
func LogSummary(log logrus.FieldLogger, query string, results []domain.SearchResult) {
	texts, images := 0, 0
	for _, r := range results {
		if r.Record.Kind == domain.KindImage {
			images++
		} else {
			texts++
		}
	}
	log.WithFields(logrus.Fields{"query": query, "texts": texts, "images": images}).Info("retrieved context")
	for _, line := range Summarize(results) {
		log.Debug("  - " + line)
	}
}
