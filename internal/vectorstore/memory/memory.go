package memory

import (
	"context"
	"fmt"
	"sort"

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore"
)

// Storage builds in-memory indexes searched by brute-force dot product.
type Storage struct{}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Build(_ context.Context, records []domain.ContentRecord, vectors [][]float64) (domain.Index, error) {
	return Build(records, vectors)
}

// Index holds one session's records and their unit vectors. It is never
// mutated after Build, so concurrent searches need no locking.
type Index struct {
	dimension int
	vectors   [][]float64
	records   []domain.ContentRecord
}

// Build copies records and vectors into a new index.
func Build(records []domain.ContentRecord, vectors [][]float64) (*Index, error) {
	dim, err := vectorstore.Validate(records, vectors)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		dimension: dim,
		records:   make([]domain.ContentRecord, len(records)),
		vectors:   make([][]float64, len(vectors)),
	}
	copy(idx.records, records)
	for i, v := range vectors {
		idx.vectors[i] = append([]float64(nil), v...)
	}
	return idx, nil
}

// Search returns up to k records by descending similarity; equal scores keep
// insertion order.
func (s *Index) Search(_ context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidK, k)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(vector), s.dimension)
	}
	// vectors are L2-normalized, so the dot product is the cosine similarity
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], vector)
	}
	idxs := argsortDesc(scores)
	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]domain.SearchResult, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, domain.SearchResult{Record: s.records[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Index) Len() int { return len(s.records) }

// Records returns a copy of the indexed records in insertion order.
func (s *Index) Records() []domain.ContentRecord {
	return append([]domain.ContentRecord(nil), s.records...)
}

func (s *Index) Close() error { return nil }

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
