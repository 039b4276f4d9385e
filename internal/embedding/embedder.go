package embedding

import (
	"math"
	"strings"

	"pdfrag/internal/domain"
)

// DefaultMaxTokens is the text budget applied before embedding.
const DefaultMaxTokens = 64

// normTolerance bounds how far a returned vector's norm may drift from 1.
const normTolerance = 1e-6

// Normalize scales v to unit L2 norm in place. It fails on a zero or
// non-finite norm instead of dividing by it.
func Normalize(v []float64) ([]float64, error) {
	norm := Norm(v)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, domain.ErrZeroNorm
	}
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// IsUnit reports whether v has unit norm within tolerance.
func IsUnit(v []float64) bool {
	return math.Abs(Norm(v)-1) < normTolerance
}

// TruncateTokens keeps the first maxTokens whitespace-separated tokens of
// text. Truncation is silent and lossy.
func TruncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= maxTokens {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:maxTokens], " ")
}
