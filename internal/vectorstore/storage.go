package vectorstore

import (
	"fmt"

	"pdfrag/internal/domain"
)

// Storage builds immutable per-session indexes.
type Storage = domain.IndexBuilder

// Validate checks that records and vectors are non-empty, aligned and of
// one dimension, which it returns.
func Validate(records []domain.ContentRecord, vectors [][]float64) (int, error) {
	if len(records) == 0 || len(vectors) == 0 {
		return 0, &domain.IndexBuildError{Records: len(records), Vectors: len(vectors), Reason: "nothing to index"}
	}
	if len(records) != len(vectors) {
		return 0, &domain.IndexBuildError{Records: len(records), Vectors: len(vectors), Reason: "records and vectors length mismatch"}
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, &domain.IndexBuildError{Records: len(records), Vectors: len(vectors), Reason: "empty vector"}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, &domain.IndexBuildError{Records: len(records), Vectors: len(vectors),
				Reason: fmt.Sprintf("vector %d has dimension %d, want %d", i, len(v), dim)}
		}
	}
	return dim, nil
}
